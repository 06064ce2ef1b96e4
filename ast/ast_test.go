package ast

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestProgramString(t *testing.T) {
	prog := &Program{
		Forms: []TopLevelForm{
			&Static{Name: &Symbol{Name: "a"}, Value: &Number{IntValue: 10}},
		},
	}
	require.Equal(t, "(static a 10)\n", prog.String())
}

func TestQuoteListString(t *testing.T) {
	q := &Quote{Payload: &QuoteList{Items: []QuoteDatum{
		&Symbol{Name: "item1"},
		&Number{IntValue: 10},
		&Boolean{Value: true},
		&Nil{},
	}}}
	require.Equal(t, "'(item1 10 true nil)", q.String())
}

func TestExpressionSatisfiesTopLevelForm(t *testing.T) {
	var form TopLevelForm = &Call{Callee: &Symbol{Name: "+"}, Args: []Expression{
		&Number{IntValue: 1}, &Number{IntValue: 1},
	}}
	require.Equal(t, "(+ 1 1)", form.String())
}
