package types

import (
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ID is the store's identity type: a 12-byte object id rendered as 24 hex
// characters.
type ID = primitive.ObjectID

// NilID is the zero identity, used for "no id assigned yet".
var NilID = primitive.NilObjectID

// NewID allocates a fresh identity.
func NewID() ID {
	return primitive.NewObjectID()
}

// ParseID normalizes an identity given either as an ID or as its 24-hex
// string form. Any other shape fails with an InvalidIdentifier error.
func ParseID(v any) (ID, error) {
	switch id := v.(type) {
	case ID:
		return id, nil
	case *ID:
		if id != nil {
			return *id, nil
		}
	case string:
		if len(id) == 24 {
			if parsed, err := primitive.ObjectIDFromHex(id); err == nil {
				return parsed, nil
			}
		}
	}
	return NilID, InvalidIdentifier(v)
}

// IsIDString reports whether s is the 24-hex form of an ID.
func IsIDString(s string) bool {
	if len(s) != 24 {
		return false
	}
	_, err := primitive.ObjectIDFromHex(s)
	return err == nil
}

// IDEqual compares two identities in any accepted form.
func IDEqual(a, b any) bool {
	ida, err := ParseID(a)
	if err != nil {
		return false
	}
	idb, err := ParseID(b)
	if err != nil {
		return false
	}
	return ida == idb
}

// DocumentID returns the document's _id when it holds a valid identity.
func DocumentID(doc map[string]any) (ID, bool) {
	if doc == nil {
		return NilID, false
	}
	raw, ok := doc[IDField]
	if !ok || raw == nil {
		return NilID, false
	}
	id, err := ParseID(raw)
	if err != nil {
		return NilID, false
	}
	return id, true
}
