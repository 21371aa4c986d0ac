package urlx

import (
    "testing"

    "github.com/stretchr/testify/assert"
)

func TestHost(t *testing.T) {
    assert.Equal(t, "example.com", Host("https://WWW.Example.com/a?b=c"))
    assert.Equal(t, "t.me", Host("t.me/somechannel"))
    assert.Equal(t, "", Host(""))
}

func TestRegistrable(t *testing.T) {
    assert.Equal(t, "example.co.uk", Registrable("files.example.co.uk"))
    assert.Equal(t, "google.com", Registrable("drive.google.com"))
}

func TestMatchesDomain(t *testing.T) {
    assert.True(t, MatchesDomain("udemy.com", "udemy.com"))
    assert.True(t, MatchesDomain("www2.udemy.com", "udemy.com"))
    assert.False(t, MatchesDomain("notudemy.com", "udemy.com"))
    assert.True(t, MatchesDomain("drive.google.com", "https://drive.google.com/file/d/x"))

    d, ok := MatchesAny("cdn.mega.nz", []string{"mediafire.com", "mega.nz"})
    assert.True(t, ok)
    assert.Equal(t, "mega.nz", d)
}
