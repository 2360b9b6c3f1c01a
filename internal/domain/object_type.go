package domain

// ObjectType is the declared `object_type` tag of an inbound sales event.
type ObjectType string

const (
	ObjectTypeOpportunity ObjectType = "Opportunity"
	ObjectTypeProject     ObjectType = "Project"
)

// ObjectTypes lists every object type the consumer can reconcile.
var ObjectTypes = []ObjectType{
	ObjectTypeOpportunity,
	ObjectTypeProject,
}

func (t ObjectType) Valid() bool {
	switch t {
	case ObjectTypeOpportunity, ObjectTypeProject:
		return true
	}
	return false
}

func (t ObjectType) String() string {
	return string(t)
}
