// Copyright 2025 The Stratum Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package grammar

import (
	"fmt"
	"strings"
)

// The clause writers below are shared by every dialect; grammars differ only
// in identifier quoting and placeholder syntax. Placeholder ordinals advance
// in clause order, which is what fixes the bind-value order for callers.

func compileSelect(g Grammar, q *Query) (string, error) {
	if q.Table == "" {
		return "", ErrNoTable
	}
	var b strings.Builder
	b.WriteString("SELECT ")
	if len(q.Columns) == 0 {
		b.WriteString("*")
	} else {
		for i, col := range q.Columns {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(g.Wrap(col))
		}
	}
	b.WriteString(" FROM ")
	b.WriteString(g.Wrap(q.Table))

	if err := writeJoins(g, &b, q.Joins); err != nil {
		return "", err
	}
	ord := 1
	if err := writeWheres(g, &b, q.Wheres, &ord); err != nil {
		return "", err
	}
	if err := writeOrders(g, &b, q.Orders); err != nil {
		return "", err
	}
	if q.LimitN > 0 {
		fmt.Fprintf(&b, " LIMIT %d", q.LimitN)
	}
	return b.String(), nil
}

func compileInsert(g Grammar, q *Query, cols []string) (string, error) {
	if q.Table == "" {
		return "", ErrNoTable
	}
	if len(cols) == 0 {
		return "", ErrNoColumns
	}
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(g.Wrap(q.Table))
	b.WriteString(" (")
	for i, col := range cols {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(g.Wrap(col))
	}
	b.WriteString(") VALUES (")
	for i := range cols {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(g.Placeholder(i + 1))
	}
	b.WriteString(")")
	return b.String(), nil
}

func compileUpdate(g Grammar, q *Query, cols []string) (string, error) {
	if q.Table == "" {
		return "", ErrNoTable
	}
	if len(cols) == 0 {
		return "", ErrNoColumns
	}
	var b strings.Builder
	b.WriteString("UPDATE ")
	b.WriteString(g.Wrap(q.Table))
	b.WriteString(" SET ")
	ord := 1
	for i, col := range cols {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(g.Wrap(col))
		b.WriteString(" = ")
		b.WriteString(g.Placeholder(ord))
		ord++
	}
	// Where placeholders continue the SET numbering.
	if err := writeWheres(g, &b, q.Wheres, &ord); err != nil {
		return "", err
	}
	return b.String(), nil
}

func compileDelete(g Grammar, q *Query) (string, error) {
	if q.Table == "" {
		return "", ErrNoTable
	}
	var b strings.Builder
	b.WriteString("DELETE FROM ")
	b.WriteString(g.Wrap(q.Table))
	ord := 1
	if err := writeWheres(g, &b, q.Wheres, &ord); err != nil {
		return "", err
	}
	return b.String(), nil
}

func writeJoins(g Grammar, b *strings.Builder, joins []JoinNode) error {
	for _, j := range joins {
		var kw string
		switch j.Kind {
		case JoinInner:
			kw = "INNER JOIN"
		case JoinLeft:
			kw = "LEFT JOIN"
		case JoinRight:
			kw = "RIGHT JOIN"
		default:
			return fmt.Errorf("%w: join kind %d", ErrUnknownNode, j.Kind)
		}
		fmt.Fprintf(b, " %s %s ON %s %s %s",
			kw, g.Wrap(j.Table), g.Wrap(j.LeftColumn), j.Operator, g.Wrap(j.RightColumn))
	}
	return nil
}

func writeWheres(g Grammar, b *strings.Builder, wheres []WhereNode, ord *int) error {
	for i, w := range wheres {
		if i == 0 {
			b.WriteString(" WHERE ")
		} else {
			switch w.Conj {
			case ConjAnd:
				b.WriteString(" AND ")
			case ConjOr:
				b.WriteString(" OR ")
			default:
				return fmt.Errorf("%w: conjunction %d", ErrUnknownNode, w.Conj)
			}
		}
		switch w.Kind {
		case WhereBasic:
			fmt.Fprintf(b, "%s %s %s", g.Wrap(w.Column), w.Operator, g.Placeholder(*ord))
			*ord++
		case WhereIn:
			if len(w.Values) == 0 {
				return fmt.Errorf("%w: column %q", ErrEmptyIn, w.Column)
			}
			b.WriteString(g.Wrap(w.Column))
			b.WriteString(" IN (")
			for j := range w.Values {
				if j > 0 {
					b.WriteString(", ")
				}
				b.WriteString(g.Placeholder(*ord))
				*ord++
			}
			b.WriteString(")")
		case WhereNull:
			b.WriteString(g.Wrap(w.Column))
			b.WriteString(" IS NULL")
		case WhereNotNull:
			b.WriteString(g.Wrap(w.Column))
			b.WriteString(" IS NOT NULL")
		default:
			return fmt.Errorf("%w: where kind %d", ErrUnknownNode, w.Kind)
		}
	}
	return nil
}

func writeOrders(g Grammar, b *strings.Builder, orders []OrderNode) error {
	for i, o := range orders {
		if i == 0 {
			b.WriteString(" ORDER BY ")
		} else {
			b.WriteString(", ")
		}
		b.WriteString(g.Wrap(o.Column))
		switch o.Dir {
		case Asc:
			b.WriteString(" ASC")
		case Desc:
			b.WriteString(" DESC")
		default:
			return fmt.Errorf("%w: direction %d", ErrUnknownNode, o.Dir)
		}
	}
	return nil
}

// wrapIdent quotes each dot-separated segment of an identifier, doubling any
// embedded quote characters. A * segment stays bare so table.* works.
func wrapIdent(ident, quote string) string {
	parts := strings.Split(ident, ".")
	for i, p := range parts {
		if p == "*" {
			continue
		}
		parts[i] = quote + strings.ReplaceAll(p, quote, quote+quote) + quote
	}
	return strings.Join(parts, ".")
}
