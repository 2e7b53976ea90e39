package instrument

import "testing"

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"600000":    "600000.SH",
		"000001":    "000001.SZ",
		"300750":    "300750.SZ",
		"510300":    "510300.SH",
		"113050":    "113050.SH",
		"123015":    "123015.SZ",
		"830799":    "830799.BJ",
		"430047":    "430047.BJ",
		"sh600519":  "600519.SH",
		"SZ000002":  "000002.SZ",
		"600000.SS": "600000.SH",
		"000001.sz": "000001.SZ",
		" 601318 ":  "601318.SH",
		"":          "",
	}
	for in, want := range cases {
		if got := Normalize(in); got != want {
			t.Errorf("Normalize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestKindOf(t *testing.T) {
	cases := []struct {
		symbol string
		want   Kind
	}{
		{"600000", Stock},
		{"000001.SZ", Stock},
		{"110059", ConvertibleBond},
		{"111010.SH", ConvertibleBond},
		{"113050", ConvertibleBond},
		{"118008", ConvertibleBond},
		{"123015", ConvertibleBond},
		{"127045.SZ", ConvertibleBond},
		{"128136", ConvertibleBond},
		{"123015.SH", Stock},
	}
	for _, tc := range cases {
		if got := KindOf(tc.symbol); got != tc.want {
			t.Errorf("KindOf(%q) = %s, want %s", tc.symbol, got, tc.want)
		}
	}
}

func TestLotAndUnit(t *testing.T) {
	if MinLot(Stock) != 100 || UnitName(Stock) != "股" {
		t.Fatalf("unexpected stock lot/unit: %d %s", MinLot(Stock), UnitName(Stock))
	}
	if MinLot(ConvertibleBond) != 10 || UnitName(ConvertibleBond) != "张" {
		t.Fatalf("unexpected bond lot/unit: %d %s", MinLot(ConvertibleBond), UnitName(ConvertibleBond))
	}
}
