package language

// SelectOperation finds the operation to execute, mirroring the rule used by
// the executor: if operationName is empty and the document has exactly one
// operation, that operation is selected; otherwise the operation matching
// operationName by name is selected. Returns nil if no operation matches.
func SelectOperation(document *QueryDocument, operationName string) *OperationDefinition {
	if document == nil {
		return nil
	}
	if operationName == "" && len(document.Operations) == 1 {
		return document.Operations[0]
	}
	for _, op := range document.Operations {
		if op.Name == operationName {
			return op
		}
	}
	return nil
}

// IsLiveOperation reports whether the selected operation carries the @live
// directive. The second return value is false when no operation could be
// selected (no operations, or an ambiguous/unknown operationName).
func IsLiveOperation(document *QueryDocument, operationName string) (bool, bool) {
	op := SelectOperation(document, operationName)
	if op == nil {
		return false, false
	}
	return op.Directives.ForName("live") != nil, true
}

// OperationName returns the name of the selected operation, or "" if the
// operation is anonymous or could not be selected.
func OperationName(document *QueryDocument, operationName string) string {
	op := SelectOperation(document, operationName)
	if op == nil {
		return ""
	}
	return op.Name
}
