package db

import "testing"

func TestNormalizeDSN(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"postgres://u:p@h:5432/d?sslmode=require", "postgres://u:p@h:5432/d?sslmode=require"},
		{"  postgres://u:p@h/d  ", "postgres://u:p@h/d"},
		{`"host=localhost user=app dbname=docflow"`, "host=localhost user=app dbname=docflow sslmode=disable"},
		{"host=localhost   user=app\tdbname=docflow sslmode=require", "host=localhost user=app dbname=docflow sslmode=require"},
		{"", ""},
		{"not-a-dsn", "not-a-dsn"},
	}
	for _, c := range cases {
		if got := NormalizeDSN(c.in); got != c.want {
			t.Fatalf("NormalizeDSN(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
