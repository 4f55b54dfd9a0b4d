package cedar

import (
	"fmt"

	"github.com/cedar-policy/cedar-go/types"
)

// EntityFactory builds the Cedar entities and UIDs a single
// authorization request needs, so core.go never constructs a
// types.EntityUID by hand.
type EntityFactory struct{}

// NewEntityFactory returns an EntityFactory.
func NewEntityFactory() *EntityFactory { return &EntityFactory{} }

// CreatePrincipalEntity builds a types.Entity of entityType/id with
// attrs converted to a Cedar record, and returns its UID alongside it.
func (*EntityFactory) CreatePrincipalEntity(
	entityType, id string, attrs map[string]interface{},
) (types.EntityUID, types.Entity) {
	uid := types.NewEntityUID(types.EntityType(entityType), types.String(id))
	entity := types.Entity{
		UID:        uid,
		Attributes: toRecord(attrs),
	}
	return uid, entity
}

// CreateEntitiesForRequest parses the Type::id strings for principal,
// action and resource and returns a types.EntityMap seeded with
// entities for principal and resource carrying the given attributes.
// Malformed identifiers produce an error rather than a panic, since
// these strings ultimately come from caller-supplied arguments.
func (f *EntityFactory) CreateEntitiesForRequest(
	principal, action, resource string,
	principalAttrs, resourceAttrs map[string]interface{},
) (types.EntityMap, error) {
	entities := types.EntityMap{}

	pType, pID, err := splitTypedID(principal)
	if err != nil {
		return nil, fmt.Errorf("invalid principal: %w", err)
	}
	_, _, err = splitTypedID(action)
	if err != nil {
		return nil, fmt.Errorf("invalid action: %w", err)
	}
	rType, rID, err := splitTypedID(resource)
	if err != nil {
		return nil, fmt.Errorf("invalid resource: %w", err)
	}

	pUID, pEntity := f.CreatePrincipalEntity(pType, pID, principalAttrs)
	entities[pUID] = pEntity

	rUID := types.NewEntityUID(types.EntityType(rType), types.String(rID))
	entities[rUID] = types.Entity{UID: rUID, Attributes: toRecord(resourceAttrs)}

	return entities, nil
}

func toRecord(attrs map[string]interface{}) types.Record {
	m := types.RecordMap{}
	for k, v := range attrs {
		if val, ok := toCedarValue(v); ok {
			m[types.String(k)] = val
		}
	}
	return types.NewRecord(m)
}

func toCedarValue(v interface{}) (types.Value, bool) {
	switch val := v.(type) {
	case string:
		return types.String(val), true
	case bool:
		return types.Boolean(val), true
	case int:
		return types.Long(val), true
	case int64:
		return types.Long(val), true
	case float64:
		return types.Long(int64(val)), true
	default:
		return nil, false
	}
}
