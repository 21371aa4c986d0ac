package delta

import (
    "testing"

    "github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
    cases := map[string]string{
        "https://www.Example.com/path/":       "example.com/path",
        "http://example.com/path?utm=1#frag":  "example.com/path",
        "example.com/path///":                 "example.com/path",
        "//www.example.com/a":                 "example.com/a",
        "HTTPS://WWW.EXAMPLE.COM":             "example.com",
        "https://https://www.example.com/x/":  "example.com/x",
        "https://example.com/go?u=https://a.b": "example.com/go",
        "  https://t.me/somechannel  ":        "t.me/somechannel",
    }
    for in, want := range cases {
        assert.Equal(t, want, Normalize(in), in)
    }
}

func TestNormalizeIsIdempotent(t *testing.T) {
    inputs := []string{
        "https://www.example.com/a/b/?q=1",
        "http://www.www.example.com//",
        "ftp://files.example.com/x.zip",
        "https://example.com/redirect/https://www.other.com/",
        "not a url at all",
        "",
    }
    for _, in := range inputs {
        once := Normalize(in)
        assert.Equal(t, once, Normalize(once), in)
    }
}

func TestHashIsStableAcrossVariants(t *testing.T) {
    base := Hash("https://sharecourse.net/alpha-course")
    for _, v := range []string{
        "http://sharecourse.net/alpha-course",
        "https://www.sharecourse.net/alpha-course/",
        "sharecourse.net/alpha-course?ref=google",
        "HTTPS://ShareCourse.net/Alpha-Course#top",
    } {
        assert.Equal(t, base, Hash(v), v)
    }
    assert.NotEqual(t, base, Hash("https://sharecourse.net/beta-course"))
    assert.Len(t, base, 64)
}
