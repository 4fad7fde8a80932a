package textproc

import "testing"

func TestStance(t *testing.T) {
	cases := []struct {
		texts []string
		want  string
	}{
		{[]string{"看好 PEPE", "准备上车"}, StanceBullish},
		{[]string{"别追了", "小心 rug", "看好", "冲一把"}, StanceMixed},
		{[]string{"别追了", "小心 RUG"}, StanceBearish},
		{[]string{"今天吃什么"}, StanceNeutral},
		{[]string{"Bull market"}, StanceMixed},
	}
	for _, tc := range cases {
		if got := Stance(tc.texts); got != tc.want {
			t.Fatalf("Stance(%v) = %s, 期望 %s", tc.texts, got, tc.want)
		}
	}
}
