package puller

import "testing"

func TestExtractText(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "drops script and style",
			in:   "<html><head><style>.x{color:red}</style><script>var a = 1;</script></head><body><p>Hello   <b>world</b></p>\n<p>again</p></body></html>",
			want: "Hello world again",
		},
		{
			name: "summary fragment",
			in:   "<p>Short <a href=\"/x\">summary</a>.</p>",
			want: "Short summary.",
		},
		{
			name: "malformed markup",
			in:   "<div><p>unclosed <b>tags",
			want: "unclosed tags",
		},
		{
			name: "plain text",
			in:   "  just\n\ttext  ",
			want: "just text",
		},
		{
			name: "empty",
			in:   "",
			want: "",
		},
	}
	for _, tc := range cases {
		if got := ExtractText(tc.in); got != tc.want {
			t.Fatalf("%s: ExtractText = %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestExtractText_SmallerThanRaw(t *testing.T) {
	raw := "<html><head><script>window.x = {a: 1, b: 2};</script></head><body><div class=\"wrap\"><p>Body</p></div></body></html>"
	if got := ExtractText(raw); len(got) >= len(raw) {
		t.Fatalf("expected extracted text smaller than raw body")
	}
}
