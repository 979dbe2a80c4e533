package assistant

import (
	"testing"

	"github.com/autoconversa/go-dealer-chat/internal/vectorstore"
)

func TestParseSearchQuery(t *testing.T) {
	tests := []struct {
		name string
		text string
		want vectorstore.Filter
		ok   bool
	}{
		{
			name: "full query with budget cap",
			text: "Busco un Toyota Corolla 2020 menos de $15000",
			want: vectorstore.Filter{Make: "toyota", Model: "corolla", YearMin: 2020, YearMax: 2020, PriceMax: 15000},
			ok:   true,
		},
		{
			name: "model implies make",
			text: "tienen algún civic disponible?",
			want: vectorstore.Filter{Make: "honda", Model: "civic"},
			ok:   true,
		},
		{
			name: "accented qualifier and no currency mark",
			text: "algo de más de 10000",
			want: vectorstore.Filter{PriceMin: 10000},
			ok:   true,
		},
		{
			name: "thousands separators",
			text: "una camioneta hasta $25,000",
			want: vectorstore.Filter{PriceMax: 25000},
			ok:   true,
		},
		{
			name: "k suffix",
			text: "presupuesto de $15k",
			want: vectorstore.Filter{PriceMax: 15000},
			ok:   true,
		},
		{
			name: "year is not a price",
			text: "un carro del 2019",
			want: vectorstore.Filter{YearMin: 2019, YearMax: 2019},
			ok:   true,
		},
		{
			name: "no signal",
			text: "hola, buenas tardes",
			ok:   false,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := ParseSearchQuery(tc.text)
			if ok != tc.ok {
				t.Fatalf("ok = %v; want %v (filter %+v)", ok, tc.ok, got)
			}
			if ok && got != tc.want {
				t.Fatalf("filter = %+v; want %+v", got, tc.want)
			}
		})
	}
}
