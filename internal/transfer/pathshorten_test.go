package transfer

import "testing"

func TestShortenPath(t *testing.T) {
	cases := []struct {
		name, path, want string
	}{
		{"test", "/home/user/Downloads/test/1/2/3", "test/1/2/3"},
		{"music", "/var/lib/music/a.mp3", "music/a.mp3"},
		{"missing", "/var/lib/music/a.mp3", ""},
	}

	for _, c := range cases {
		if got := shortenPath(c.name, c.path); got != c.want {
			t.Errorf("shortenPath(%q, %q) = %q, want %q", c.name, c.path, got, c.want)
		}
	}
}
