package query

import (
	"fmt"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/ast"
	"github.com/expr-lang/expr/vm"

	"github.com/good-yellow-bee/vitalwatch/internal/classifier"
	"github.com/good-yellow-bee/vitalwatch/internal/models"
)

// FieldType represents the data type of a filterable field.
type FieldType int

const (
	FieldTypeString FieldType = iota
	FieldTypeFloat
	FieldTypeTime
)

// FieldDef defines a filterable sample field with its allowed operators.
type FieldDef struct {
	Name      string
	Type      FieldType
	Operators []string
	value     func(s *models.Sample) any
}

// IsOperatorAllowed checks if an operator is valid for a field.
func (f FieldDef) IsOperatorAllowed(op string) bool {
	for _, allowed := range f.Operators {
		if allowed == op {
			return true
		}
	}
	return false
}

var (
	numericOps  = []string{"==", "!=", ">=", "<=", ">", "<"}
	textOps     = []string{"==", "!=", "in", "contains", "startsWith", "endsWith", "matches"}
	severityOps = []string{"==", "!=", "in"}
	timeOps     = []string{">=", "<=", ">", "<"}
)

func vitalField(v models.VitalType) FieldDef {
	return FieldDef{
		Name:      v.JSONKey(),
		Type:      FieldTypeFloat,
		Operators: numericOps,
		value: func(s *models.Sample) any {
			f, _ := s.Value(v)
			return f
		},
	}
}

// SampleFields are the fields a filter expression may reference. Vitals
// that are missing or not numeric read as 0.
var SampleFields = map[string]FieldDef{
	"patientId": {Name: "patientId", Type: FieldTypeString, Operators: textOps,
		value: func(s *models.Sample) any { return s.PatientID }},
	"deviceId": {Name: "deviceId", Type: FieldTypeString, Operators: textOps,
		value: func(s *models.Sample) any { return s.DeviceID }},
	"roomNumber": {Name: "roomNumber", Type: FieldTypeString, Operators: textOps,
		value: func(s *models.Sample) any { return s.RoomNumber }},
	"patientCondition": {Name: "patientCondition", Type: FieldTypeString, Operators: textOps,
		value: func(s *models.Sample) any { return s.PatientCondition }},
	"dataQuality": {Name: "dataQuality", Type: FieldTypeString, Operators: textOps,
		value: func(s *models.Sample) any { return s.DataQuality }},

	"heartRate":        vitalField(models.VitalHeartRate),
	"systolicBP":       vitalField(models.VitalSystolicBP),
	"diastolicBP":      vitalField(models.VitalDiastolicBP),
	"temperature":      vitalField(models.VitalTemperature),
	"oxygenSaturation": vitalField(models.VitalOxygenSaturation),

	// Derived from the clinical bands.
	"severity": {Name: "severity", Type: FieldTypeString, Operators: severityOps,
		value: func(s *models.Sample) any { return string(classifier.Classify(s)) }},

	"timestamp": {Name: "timestamp", Type: FieldTypeTime, Operators: timeOps,
		value: func(s *models.Sample) any { return s.Timestamp }},
}

// AllowedFunctions lists functions allowed in expressions.
var AllowedFunctions = map[string]bool{
	"now":      true,
	"duration": true,
}

// isBuiltinFunction checks if a function is a built-in expr function.
func isBuiltinFunction(name string) bool {
	builtins := map[string]bool{
		"len": true, "lower": true, "upper": true, "trim": true,
		"abs": true, "ceil": true, "floor": true, "round": true,
		"min": true, "max": true,
	}
	return builtins[name]
}

// Filter is a compiled boolean expression over sample fields, such as
// `heartRate > 120 and roomNumber startsWith "4"`.
type Filter struct {
	program *vm.Program
	raw     string
	now     func() time.Time
}

// ParseFilter compiles and validates expression. now backs the now()
// function and defaults to time.Now. Any problem with the expression is
// a ValidationError.
func ParseFilter(expression string, now func() time.Time) (*Filter, error) {
	if expression == "" {
		return nil, models.NewValidationError("filter", "empty expression")
	}
	if now == nil {
		now = time.Now
	}

	f := &Filter{raw: expression, now: now}
	program, err := expr.Compile(expression, expr.Env(f.env(nil)), expr.AsBool())
	if err != nil {
		return nil, models.NewValidationError("filter", "parse error: %v", err)
	}

	node := program.Node()
	v := &validationVisitor{}
	ast.Walk(&node, v)
	if v.err != nil {
		return nil, models.NewValidationError("filter", "%v", v.err)
	}

	f.program = program
	return f, nil
}

// String returns the source expression.
func (f *Filter) String() string {
	if f == nil {
		return ""
	}
	return f.raw
}

// env builds the expression environment for s. A nil sample yields the
// typed placeholders used at compile time.
func (f *Filter) env(s *models.Sample) map[string]any {
	env := make(map[string]any, len(SampleFields)+len(AllowedFunctions))
	for name, field := range SampleFields {
		if s != nil {
			env[name] = field.value(s)
			continue
		}
		switch field.Type {
		case FieldTypeString:
			env[name] = ""
		case FieldTypeFloat:
			env[name] = 0.0
		case FieldTypeTime:
			env[name] = time.Time{}
		}
	}

	env["now"] = func() time.Time { return f.now().UTC() }
	env["duration"] = time.ParseDuration
	return env
}

// Match reports whether s satisfies the filter. A nil filter matches
// everything.
func (f *Filter) Match(s *models.Sample) (bool, error) {
	if f == nil {
		return true, nil
	}
	if s == nil {
		return false, nil
	}
	out, err := expr.Run(f.program, f.env(s))
	if err != nil {
		return false, models.NewValidationError("filter", "evaluate %q: %v", f.raw, err)
	}
	ok, _ := out.(bool)
	return ok, nil
}

// Samples returns the matching samples in their original order.
func (f *Filter) Samples(in []*models.Sample) ([]*models.Sample, error) {
	if f == nil {
		return in, nil
	}
	out := make([]*models.Sample, 0, len(in))
	for _, s := range in {
		ok, err := f.Match(s)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, s)
		}
	}
	return out, nil
}

// Range narrows res to the matching samples and recomputes its
// statistics. The limit was applied before filtering.
func (f *Filter) Range(res *RangeResult) (*RangeResult, error) {
	if f == nil || res == nil {
		return res, nil
	}
	samples, err := f.Samples(res.Samples)
	if err != nil {
		return nil, err
	}
	out := *res
	out.Samples = samples
	out.Stats = Summarize(samples)
	out.Count = len(samples)
	return &out, nil
}

// Recent keeps the patients whose newest sample matches.
func (f *Filter) Recent(res *RecentResult) (*RecentResult, error) {
	if f == nil || res == nil {
		return res, nil
	}
	out := &RecentResult{
		Window:       res.Window,
		Latest:       make(map[string]*models.Sample),
		RecordCounts: make(map[string]int),
	}
	for id, s := range res.Latest {
		ok, err := f.Match(s)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		out.Latest[id] = s
		out.RecordCounts[id] = res.RecordCounts[id]
		out.TotalRecords += res.RecordCounts[id]
	}
	out.TotalPatients = len(out.Latest)
	return out, nil
}

// validationVisitor checks fields, operators and calls in the AST.
type validationVisitor struct {
	err error
}

func (v *validationVisitor) Visit(node *ast.Node) {
	if v.err != nil {
		return
	}

	switch n := (*node).(type) {
	case *ast.IdentifierNode:
		if _, ok := SampleFields[n.Value]; !ok {
			if !AllowedFunctions[n.Value] && !isBuiltinFunction(n.Value) {
				v.err = fmt.Errorf("unknown field: %s", n.Value)
			}
		}

	case *ast.BinaryNode:
		if ident, ok := n.Left.(*ast.IdentifierNode); ok {
			if field, ok := SampleFields[ident.Value]; ok {
				if !field.IsOperatorAllowed(n.Operator) {
					v.err = fmt.Errorf("operator %q not allowed for field %q", n.Operator, ident.Value)
				}
			}
		}

	case *ast.MemberNode:
		if ident, ok := n.Node.(*ast.IdentifierNode); ok {
			if _, ok := SampleFields[ident.Value]; ok {
				v.err = fmt.Errorf("field %q does not support member access", ident.Value)
			}
		}

	case *ast.CallNode:
		if ident, ok := n.Callee.(*ast.IdentifierNode); ok {
			if !AllowedFunctions[ident.Value] && !isBuiltinFunction(ident.Value) {
				v.err = fmt.Errorf("function %q is not allowed", ident.Value)
			}
		}
	}
}
