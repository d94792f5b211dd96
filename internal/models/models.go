package models

// All returns every persisted model, in migration order
func All() []interface{} {
	return []interface{}{
		&Test{},
		&Group{},
		&GroupMember{},
		&TestDirectStudent{},
		&TestGroup{},
		&TestExcludedStudent{},
		&Attempt{},
		&Answer{},
		&ImportSession{},
	}
}
