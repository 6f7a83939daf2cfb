package ingest

import "testing"

func TestDetectEnglish(t *testing.T) {
	cases := []struct {
		name string
		body string
		want bool
	}{
		{"plain english sentence", "This is a great product and I love it", true},
		{"short english phrase", "Not bad at all", true},
		{"no stopword match", "Producto excelente gracias", false},
		{"empty", "", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := detectEnglish(tc.body); got != tc.want {
				t.Errorf("detectEnglish(%q) = %v, want %v", tc.body, got, tc.want)
			}
		})
	}
}

func TestColumnIndices(t *testing.T) {
	bodyCol, custCol := columnIndices([]string{"customer_id", "body"})
	if bodyCol != 1 || custCol != 0 {
		t.Errorf("columnIndices = (%d, %d), want (1, 0)", bodyCol, custCol)
	}

	bodyCol, custCol = columnIndices([]string{"text"})
	if bodyCol != 0 || custCol != -1 {
		t.Errorf("columnIndices = (%d, %d), want (0, -1)", bodyCol, custCol)
	}

	bodyCol, custCol = columnIndices([]string{"unrelated_column"})
	if bodyCol != 0 || custCol != -1 {
		t.Errorf("columnIndices fallback = (%d, %d), want (0, -1)", bodyCol, custCol)
	}
}

func TestDedupKey_DistinguishesCustomerAndNilCustomer(t *testing.T) {
	withCustomer := "c1"
	a := dedupKey("hello world", "website", &withCustomer)
	b := dedupKey("hello world", "website", nil)
	if a == b {
		t.Errorf("dedupKey should differ between a customer id and nil customer id")
	}

	c := dedupKey("hello world", "website", &withCustomer)
	if a != c {
		t.Errorf("dedupKey should be stable for identical inputs")
	}
}
