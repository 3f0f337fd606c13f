package gateway

import "errors"

var (
	ErrGatewayNotSupported = errors.New("gateway is not supported")
	ErrGatewayIDNotFound   = errors.New("gateway id not found")
)

// Canonical gateway names.
const (
	NamePlisio    = "PLISIO"
	NameRapyd     = "RAPYD"
	NameNoda      = "NODA"
	NameCoinToPay = "COINTOPAY"
	NameKlymeEU   = "KLYME_EU"
	NameKlymeGB   = "KLYME_GB"
	NameKlymeDE   = "KLYME_DE"
)

// idToName is the fixed identity table. IDs are 4-character opaque tokens;
// adding a gateway means adding one entry here.
var idToName = map[string]string{
	"plsi": NamePlisio,
	"rpyd": NameRapyd,
	"noda": NameNoda,
	"ctpy": NameCoinToPay,
	"kleu": NameKlymeEU,
	"klgb": NameKlymeGB,
	"klde": NameKlymeDE,
}

var nameToID = func() map[string]string {
	items := make(map[string]string, len(idToName))
	for id, name := range idToName {
		items[name] = id
	}
	return items
}()

func NameFromID(id string) (string, error) {
	name, ok := idToName[id]
	if !ok {
		return "", ErrGatewayIDNotFound
	}
	return name, nil
}

func IDFromName(name string) (string, error) {
	id, ok := nameToID[name]
	if !ok {
		return "", ErrGatewayIDNotFound
	}
	return id, nil
}

func IsValidID(id string) bool {
	_, ok := idToName[id]
	return ok
}

func IsValidName(name string) bool {
	_, ok := nameToID[name]
	return ok
}

// ResolveName accepts either a 4-character gateway id or a canonical name
// and returns the canonical name. Public request surfaces take both forms.
func ResolveName(idOrName string) (string, error) {
	if name, ok := idToName[idOrName]; ok {
		return name, nil
	}
	if _, ok := nameToID[idOrName]; ok {
		return idOrName, nil
	}
	return "", ErrGatewayIDNotFound
}

// Registry dispatches by canonical gateway name, the way the identity table
// itself dispatches by id. Read-only after construction.
type Registry struct {
	gateways map[string]Gateway
}

func NewRegistry(gateways ...Gateway) *Registry {
	items := make(map[string]Gateway, len(gateways))
	for _, g := range gateways {
		items[g.Name()] = g
	}
	return &Registry{gateways: items}
}

func (r *Registry) Get(name string) (Gateway, error) {
	g, ok := r.gateways[name]
	if !ok {
		return nil, ErrGatewayNotSupported
	}
	return g, nil
}

func (r *Registry) All() []Gateway {
	items := make([]Gateway, 0, len(r.gateways))
	for _, g := range r.gateways {
		items = append(items, g)
	}
	return items
}
