package livequery

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/liveql/liveql/internal/language"
	"github.com/liveql/liveql/internal/schema"
)

// FieldExtensionKey is the schema field extension under which a field
// definition may provide a function contributing extra resource identifiers
// on every execution. The stored value must be a CollectResourceIdentifiers.
const FieldExtensionKey = "liveQuery.collectResourceIdentifiers"

// CollectResourceIdentifiers is the shape of a field extension function:
// given the operation's root value and the field's coerced argument values,
// it returns zero or more extra resource identifiers to merge into the
// record's identifier set. Untrusted return values are coerced to strings
// and empties are dropped; string and []string are accepted directly.
type CollectResourceIdentifiers func(rootValue any, args map[string]any) any

// DefaultIDFieldName is the object-identifier field name used when a store
// is not configured with an explicit IDFieldName.
const DefaultIDFieldName = "id"

// extractOptions bundles the inputs to identifier extraction (spec's
// "operation AST, concrete data, schema, variables").
type extractOptions struct {
	schema         *schema.Schema
	document       *language.QueryDocument
	variableValues map[string]any
	rootValue      any
	idFieldName    string
}

// extractIdentifiers walks operation's selection set against data and
// returns the set of resource identifiers the result depends on.
func extractIdentifiers(opts extractOptions, operation *language.OperationDefinition, rootType *schema.Type, data any) map[string]struct{} {
	out := make(map[string]struct{})
	if operation == nil || rootType == nil {
		return out
	}
	e := &extractor{opts: opts, out: out, visitedFragments: map[string]bool{}}
	e.walkObject(rootType, operation.SelectionSet, data)
	return out
}

type extractor struct {
	opts             extractOptions
	out              map[string]struct{}
	visitedFragments map[string]bool
}

type fieldGroup struct {
	responseName string
	fields       []*language.Field
}

// collectFieldGroups mirrors executor/fields.go's collectFields: it inlines
// fragments and evaluates @skip/@include, grouping selections by response
// name. Kept local (rather than imported) because the executor's collector
// is unexported and tied to executionState; see DESIGN.md.
func (e *extractor) collectFieldGroups(objectType *schema.Type, selectionSet language.SelectionSet) []fieldGroup {
	order := []string{}
	index := map[string]int{}
	groups := []fieldGroup{}

	var visit func(selectionSet language.SelectionSet)
	visit = func(selectionSet language.SelectionSet) {
		for _, sel := range selectionSet {
			switch s := sel.(type) {
			case *language.Field:
				if !e.shouldInclude(s.Directives) {
					continue
				}
				name := s.Alias
				if name == "" {
					name = s.Name
				}
				if idx, ok := index[name]; ok {
					groups[idx].fields = append(groups[idx].fields, s)
				} else {
					index[name] = len(groups)
					groups = append(groups, fieldGroup{responseName: name, fields: []*language.Field{s}})
					order = append(order, name)
				}
			case *language.InlineFragment:
				if !e.shouldInclude(s.Directives) {
					continue
				}
				if s.TypeCondition != "" && s.TypeCondition != objectType.Name {
					continue
				}
				visit(s.SelectionSet)
			case *language.FragmentSpread:
				if !e.shouldInclude(s.Directives) {
					continue
				}
				if e.visitedFragments[s.Name] {
					continue
				}
				e.visitedFragments[s.Name] = true
				fd := e.opts.document.Fragments.ForName(s.Name)
				if fd == nil {
					continue
				}
				if fd.TypeCondition != "" && fd.TypeCondition != objectType.Name {
					continue
				}
				if !e.shouldInclude(fd.Directives) {
					continue
				}
				visit(fd.SelectionSet)
			}
		}
	}
	visit(selectionSet)
	return groups
}

func (e *extractor) shouldInclude(directives language.DirectiveList) bool {
	if skip := directives.ForName("skip"); skip != nil {
		if v, ok := e.directiveBoolArg(skip, "if"); ok && v {
			return false
		}
	}
	if include := directives.ForName("include"); include != nil {
		if v, ok := e.directiveBoolArg(include, "if"); ok && !v {
			return false
		}
	}
	return true
}

func (e *extractor) directiveBoolArg(d *language.Directive, name string) (bool, bool) {
	for _, arg := range d.Arguments {
		if arg.Name == name {
			v := e.valueFromAST(arg.Value)
			b, ok := v.(bool)
			return b, ok
		}
	}
	return false, false
}

func (e *extractor) valueFromAST(v *language.Value) any {
	if v == nil {
		return nil
	}
	if v.Kind == language.Variable {
		name := strings.TrimPrefix(v.Raw, "$")
		if val, ok := e.opts.variableValues[v.Raw]; ok {
			return val
		}
		if val, ok := e.opts.variableValues[name]; ok {
			return val
		}
		return nil
	}
	return astValueToGo(v)
}

func astValueToGo(v *language.Value) any {
	if v == nil {
		return nil
	}
	switch v.Kind {
	case language.IntValue:
		iv, _ := strconv.Atoi(v.Raw)
		return iv
	case language.FloatValue:
		fv, _ := strconv.ParseFloat(v.Raw, 64)
		return fv
	case language.StringValue, language.BlockValue:
		return v.Raw
	case language.BooleanValue:
		return v.Raw == "true"
	case language.NullValue:
		return nil
	case language.EnumValue:
		return v.Raw
	case language.ListValue:
		out := make([]any, len(v.Children))
		for i, c := range v.Children {
			out[i] = astValueToGo(c.Value)
		}
		return out
	case language.ObjectValue:
		m := make(map[string]any)
		for _, f := range v.Children {
			m[f.Name] = astValueToGo(f.Value)
		}
		return m
	default:
		return nil
	}
}

func getFieldDefinition(objectType *schema.Type, name string) *schema.Field {
	for _, f := range objectType.Fields {
		if f.Name == name {
			return f
		}
	}
	return nil
}

func mergeSelectionSets(fields []*language.Field) language.SelectionSet {
	var merged language.SelectionSet
	for _, f := range fields {
		merged = append(merged, f.SelectionSet...)
	}
	return merged
}

// walkObject extracts identifiers for a completed object value: one
// coordinate per selected field, optional argument-qualified coordinates,
// extension-contributed identifiers, the object identifier rule, and
// recursion into sub-selections / list items.
func (e *extractor) walkObject(objectType *schema.Type, selectionSet language.SelectionSet, data any) {
	if objectType == nil {
		return
	}
	groups := e.collectFieldGroups(objectType, selectionSet)

	dataMap, _ := data.(map[string]any)

	// Object identifier rule (spec §4.1 step 3).
	idFieldName := e.opts.idFieldName
	if idFieldName == "" {
		idFieldName = DefaultIDFieldName
	}
	if dataMap != nil {
		if idDef := getFieldDefinition(objectType, idFieldName); idDef != nil &&
			schema.IsNonNull(idDef.Type) && schema.GetNamedType(idDef.Type) == "ID" {
			for _, g := range groups {
				if len(g.fields) > 0 && g.fields[0].Name == idFieldName {
					if idValue, ok := dataMap[g.responseName]; ok && idValue != nil {
						e.out[objectType.Name+":"+stringifyID(idValue)] = struct{}{}
					}
					break
				}
			}
		}
	}

	for _, g := range groups {
		field := g.fields[0]
		if field.Name == "__typename" {
			continue
		}
		fieldDef := getFieldDefinition(objectType, field.Name)
		if fieldDef == nil {
			continue
		}
		e.out[objectType.Name+"."+field.Name] = struct{}{}

		if argCoord := e.argumentCoordinate(objectType.Name, field); argCoord != "" {
			e.out[argCoord] = struct{}{}
		}

		if fn, ok := fieldDef.Extensions[FieldExtensionKey].(CollectResourceIdentifiers); ok && fn != nil {
			args := e.coerceArguments(field.Arguments)
			for _, id := range coerceIdentifierReturn(fn(e.opts.rootValue, args)) {
				e.out[id] = struct{}{}
			}
		}

		var childData any
		if dataMap != nil {
			childData = dataMap[g.responseName]
		}
		if childData == nil {
			continue
		}
		e.descend(fieldDef.Type, mergeSelectionSets(g.fields), childData)
	}
}

// descend completes a field's value for identifier-extraction purposes,
// mirroring executor.completeValue's unwrap-then-dispatch structure.
func (e *extractor) descend(fieldType *schema.TypeRef, selectionSet language.SelectionSet, data any) {
	if data == nil {
		return
	}
	t := fieldType
	if schema.IsNonNull(t) {
		t = schema.Unwrap(t)
	}
	if schema.IsList(t) {
		inner := schema.Unwrap(t)
		items, ok := data.([]any)
		if !ok {
			return
		}
		for _, item := range items {
			e.descend(inner, selectionSet, item)
		}
		return
	}
	namedType := schema.GetNamedType(t)
	typ := e.opts.schema.Types[namedType]
	if typ == nil {
		return
	}
	switch typ.Kind {
	case schema.TypeKindObject:
		e.walkObject(typ, selectionSet, data)
	case schema.TypeKindInterface, schema.TypeKindUnion:
		concrete := e.resolveConcreteType(data)
		if concrete == nil {
			return
		}
		e.walkObject(concrete, selectionSet, data)
	default:
		// Scalars and enums contribute nothing beyond the coordinate already emitted.
	}
}

// resolveConcreteType recovers the concrete object type for an
// interface/union value from a __typename key in the already-produced data,
// since the extractor has no Runtime to call ResolveType through.
func (e *extractor) resolveConcreteType(data any) *schema.Type {
	m, ok := data.(map[string]any)
	if !ok {
		return nil
	}
	name, _ := m["__typename"].(string)
	if name == "" {
		return nil
	}
	t := e.opts.schema.Types[name]
	if t == nil || t.Kind != schema.TypeKindObject {
		return nil
	}
	return t
}

// argumentCoordinate renders "TypeName.fieldName(arg:json,...)" when the
// selection passes argument values, sorted lexicographically by name.
func (e *extractor) argumentCoordinate(typeName string, field *language.Field) string {
	if len(field.Arguments) == 0 {
		return ""
	}
	names := make([]string, 0, len(field.Arguments))
	values := make(map[string]any, len(field.Arguments))
	for _, arg := range field.Arguments {
		names = append(names, arg.Name)
		values[arg.Name] = e.valueFromAST(arg.Value)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+":"+CanonicalJSON(values[name]))
	}
	return fmt.Sprintf("%s.%s(%s)", typeName, field.Name, strings.Join(parts, ","))
}

func (e *extractor) coerceArguments(arguments language.ArgumentList) map[string]any {
	args := make(map[string]any, len(arguments))
	for _, arg := range arguments {
		args[arg.Name] = e.valueFromAST(arg.Value)
	}
	return args
}

// CanonicalJSON renders v with sorted object keys and no whitespace.
// encoding/json already sorts map[string]any keys and emits no extra
// whitespace without Indent, so it satisfies the canonicalization rule
// directly (see DESIGN.md for why no extra library is used here).
func CanonicalJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(b)
}

func stringifyID(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}

// coerceIdentifierReturn normalizes an extension function's untrusted return
// value into a slice of non-empty identifier strings.
func coerceIdentifierReturn(v any) []string {
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		if t == "" {
			return nil
		}
		return []string{t}
	case []string:
		out := make([]string, 0, len(t))
		for _, s := range t {
			if s != "" {
				out = append(out, s)
			}
		}
		return out
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			out = append(out, coerceIdentifierReturn(item)...)
		}
		return out
	default:
		s := fmt.Sprint(t)
		if s == "" {
			return nil
		}
		return []string{s}
	}
}
