package odata

import (
	"errors"
	"testing"
)

func TestParseRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "simple comparison",
			input: "workerStatus eq 'Active'",
			want:  "workerStatus eq 'Active'",
		},
		{
			name:  "slash path survives",
			input: "worker/person/legalName/familyName eq 'Smith'",
			want:  "worker/person/legalName/familyName eq 'Smith'",
		},
		{
			name:  "dotted path normalizes to slashes",
			input: "worker.person.familyName eq 'Smith'",
			want:  "worker/person/familyName eq 'Smith'",
		},
		{
			name:  "and chain",
			input: "a eq 1 and b eq 2 and c eq 3",
			want:  "(a eq 1 and b eq 2 and c eq 3)",
		},
		{
			name:  "or binds looser than and",
			input: "a eq 1 or b eq 2 and c eq 3",
			want:  "(a eq 1 or (b eq 2 and c eq 3))",
		},
		{
			name:  "explicit parens override precedence",
			input: "(a eq 1 or b eq 2) and c eq 3",
			want:  "((a eq 1 or b eq 2) and c eq 3)",
		},
		{
			name:  "not comparison",
			input: "not a eq 'x'",
			want:  "not (a eq 'x')",
		},
		{
			name:  "not parenthesized group",
			input: "not (a eq 1 and b eq 2)",
			want:  "not (a eq 1 and b eq 2)",
		},
		{
			name:  "contains function",
			input: "contains(worker/email,'@example.com')",
			want:  "contains(worker/email,'@example.com')",
		},
		{
			name:  "startswith in conjunction",
			input: "startswith(positionID,'ENG') and isActive eq true",
			want:  "(startswith(positionID,'ENG') and isActive eq true)",
		},
		{
			name:  "escaped quote round-trips",
			input: "name eq 'O''Brien'",
			want:  "name eq 'O''Brien'",
		},
		{
			name:  "numeric literals",
			input: "rate gt 17.5 and count le -3",
			want:  "(rate gt 17.5 and count le -3)",
		},
		{
			name:  "null literal",
			input: "terminationDate eq null",
			want:  "terminationDate eq null",
		},
		{
			name:  "keywords are case-insensitive",
			input: "a EQ 1 AND b NE 2",
			want:  "(a eq 1 and b ne 2)",
		},
		{
			name:  "constant comparison",
			input: "1 eq 0",
			want:  "1 eq 0",
		},
		{
			name:  "extra whitespace ignored",
			input: "  a   eq   1  ",
			want:  "a eq 1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expr, err := Parse(tt.input)
			if err != nil {
				t.Fatalf("Parse(%q) error: %v", tt.input, err)
			}
			if got := expr.Serialize(); got != tt.want {
				t.Errorf("Parse(%q).Serialize() = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseBuilderOutput(t *testing.T) {
	// Everything the builder emits must parse back.
	exprs := []Expr{
		Field("workerStatus").Eq("Active"),
		Field("a.b").Eq("x").And(Field("c").Gt(5)),
		Not(Field("a").Eq("x")),
		Field("status").IsIn("A", "B", "C"),
		Field("worker.email").Contains("@example.com"),
		Field("a").Eq(1).And(Field("b").Eq(2).Or(Field("c").Eq(3))),
	}

	for _, e := range exprs {
		serialized := e.Serialize()
		parsed, err := Parse(serialized)
		if err != nil {
			t.Errorf("Parse(%q) error: %v", serialized, err)
			continue
		}
		if got := parsed.Serialize(); got != serialized {
			t.Errorf("round-trip changed %q to %q", serialized, got)
		}
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "unterminated string", input: "a eq 'unclosed"},
		{name: "dangling operator", input: "a eq"},
		{name: "missing close paren", input: "(a eq 1"},
		{name: "trailing tokens", input: "a eq 1 b"},
		{name: "bare literal", input: "'Active'"},
		{name: "string on left side", input: "'x' eq a"},
		{name: "unexpected character", input: "a eq #"},
		{name: "function missing comma", input: "contains(a 'x')"},
		{name: "empty parens", input: "()"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.input)
			if err == nil {
				t.Fatalf("Parse(%q) succeeded, want error", tt.input)
			}
			if !errors.Is(err, ErrParse) {
				t.Errorf("Parse(%q) error = %v, want ErrParse", tt.input, err)
			}
		})
	}
}
