package jsonval

// RulesCollectionField is the conventional name of the top-level array
// holding rule objects in a rules document.
const RulesCollectionField = "rules"

// RuleIDField is the field identifying a rule object.
const RuleIDField = "id"

// FindRuleByID searches a JSON document for an object whose "id" field
// equals ruleID. The search is fail-closed: a document that does not parse
// yields (nil, false) rather than an error.
//
// Search order: a top-level "rules" array is linearly scanned first; when
// that yields nothing the whole tree is walked depth-first (object fields
// in sorted key order, so repeated calls on the same text return the same
// match even when ids are duplicated).
func FindRuleByID(doc []byte, ruleID string) (*Value, bool) {
	root, err := Parse(doc)
	if err != nil {
		return nil, false
	}
	return findRule(root, ruleID)
}

func findRule(root *Value, ruleID string) (*Value, bool) {
	if rules, ok := root.Field(RulesCollectionField); ok && rules.Kind() == KindArray {
		for _, item := range rules.Items() {
			if hasRuleID(item, ruleID) {
				return item, true
			}
		}
	}
	return walkForRule(root, ruleID)
}

// hasRuleID reports whether v is an object whose id field is the given
// string.
func hasRuleID(v *Value, ruleID string) bool {
	if v.Kind() != KindObject {
		return false
	}
	id, ok := v.Field(RuleIDField)
	return ok && id.Kind() == KindString && id.StringValue() == ruleID
}

// walkForRule walks the tree depth-first and returns the first matching
// object. Input is freshly parsed JSON, a tree, so no cycle guard is
// needed.
func walkForRule(v *Value, ruleID string) (*Value, bool) {
	if hasRuleID(v, ruleID) {
		return v, true
	}
	switch v.Kind() {
	case KindArray:
		for _, item := range v.Items() {
			if found, ok := walkForRule(item, ruleID); ok {
				return found, true
			}
		}
	case KindObject:
		for _, name := range v.FieldNames() {
			field, _ := v.Field(name)
			if found, ok := walkForRule(field, ruleID); ok {
				return found, true
			}
		}
	}
	return nil, false
}
