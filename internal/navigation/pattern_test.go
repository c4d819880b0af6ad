package navigation

import (
	"fmt"
	"testing"
)

func TestAnalyze(t *testing.T) {
	tests := []struct {
		name    string
		history []string
		want    []string
	}{
		{"nil", nil, []string{}},
		{"single entry", []string{"/contratos"}, []string{}},
		{"document transition", []string{"/contratos", "/gerar-documento"}, []string{PatternDocument}},
		{"admin transition", []string{"/dashboard", "/admin"}, []string{PatternAdmin}},
		{"non-adjacent pair is ignored", []string{"/contratos", "/login", "/documento-publico"}, []string{}},
		{"reverse order is ignored", []string{"/documento", "/contrato"}, []string{}},
		{
			"first occurrence order and dedup",
			[]string{"/dashboard", "/admin", "/editar-contrato", "/documento", "/dashboard-x", "/admin"},
			[]string{PatternAdmin, PatternDocument},
		},
		{"case sensitive", []string{"/Contratos", "/Documento"}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Analyze(tt.history)
			if got == nil {
				t.Fatal("Analyze should never return nil")
			}
			if fmt.Sprint(got) != fmt.Sprint(tt.want) {
				t.Errorf("Analyze(%v) = %v, want %v", tt.history, got, tt.want)
			}
		})
	}
}

func TestHas(t *testing.T) {
	p := []string{PatternAdmin}
	if !Has(p, PatternAdmin) || Has(p, PatternDocument) {
		t.Errorf("Has() mismatch for %v", p)
	}
}
