package store

import "fmt"

// Collection names.
const (
	Users               = "users"
	Classes             = "classes"
	Students            = "students"
	Lessons             = "lessons"
	Notices             = "notices"
	Messages            = "messages"
	Grades              = "grades"
	Settings            = "settings"
	WebAuthnCredentials = "webauthn_credentials"
	Sessions            = "sessions"
	Activity            = "activity"
)

// Index names. An index is named after the document field it covers.
const (
	ByEmail      = "email"
	ByTeacher    = "teacherId"
	ByClass      = "classId"
	ByStudent    = "studentId"
	BySession    = "sessionId"
	ByUser       = "userId"
	ByAccessCode = "accessCode"
)

// Index is a secondary index over one top-level document field.
type Index struct {
	Name   string
	Unique bool
}

// Collection describes one record collection: the document field holding
// the primary key and the secondary indexes available for lookups.
type Collection struct {
	Name    string
	KeyPath string
	Indexes []Index
}

// IndexName is the SQLite name of index idx on this collection.
func (c Collection) IndexName(idx string) string {
	return c.Name + "_" + idx
}

func (c Collection) index(name string) (Index, bool) {
	for _, idx := range c.Indexes {
		if idx.Name == name {
			return idx, true
		}
	}
	return Index{}, false
}

// Schema is the collection set at SchemaVersion. It must agree with the
// migration ladder; store tests check that every index listed here exists.
var Schema = map[string]Collection{
	Users:               {Name: Users, KeyPath: "id", Indexes: []Index{{Name: ByEmail, Unique: true}}},
	Classes:             {Name: Classes, KeyPath: "id", Indexes: []Index{{Name: ByTeacher}}},
	Students:            {Name: Students, KeyPath: "id", Indexes: []Index{{Name: ByTeacher}, {Name: ByClass}, {Name: ByAccessCode}}},
	Lessons:             {Name: Lessons, KeyPath: "id", Indexes: []Index{{Name: ByTeacher}}},
	Notices:             {Name: Notices, KeyPath: "id", Indexes: []Index{{Name: ByTeacher}}},
	Messages:            {Name: Messages, KeyPath: "id", Indexes: []Index{{Name: ByTeacher}}},
	Grades:              {Name: Grades, KeyPath: "id", Indexes: []Index{{Name: ByTeacher}, {Name: ByStudent}}},
	Settings:            {Name: Settings, KeyPath: "key"},
	WebAuthnCredentials: {Name: WebAuthnCredentials, KeyPath: "credentialId", Indexes: []Index{{Name: ByUser}}},
	Sessions:            {Name: Sessions, KeyPath: "sessionId", Indexes: []Index{{Name: ByTeacher}, {Name: ByStudent}}},
	Activity:            {Name: Activity, KeyPath: "id", Indexes: []Index{{Name: BySession}, {Name: ByStudent}}},
}

// TeacherOwned lists the collections cleared by teacherId during an account
// cascade, besides sessions and credentials which are handled first.
var TeacherOwned = []string{Classes, Students, Lessons, Notices, Messages, Grades}

func lookup(name string) (Collection, error) {
	c, ok := Schema[name]
	if !ok {
		return Collection{}, fmt.Errorf("%w: %q", ErrUnknownStore, name)
	}
	return c, nil
}

func lookupIndex(storeName, indexName string) (Collection, Index, error) {
	c, err := lookup(storeName)
	if err != nil {
		return Collection{}, Index{}, err
	}
	idx, ok := c.index(indexName)
	if !ok {
		return Collection{}, Index{}, fmt.Errorf("%w: %s.%s", ErrUnknownIndex, storeName, indexName)
	}
	return c, idx, nil
}
