package dedup

import (
    "testing"

    "github.com/stretchr/testify/assert"
)

func TestNormalizeWebsite(t *testing.T) {
    cases := map[string]string{
        "https://www.Acme.de/":  "acme.de",
        "http://acme.de":        "acme.de",
        "acme.de/imprint":       "acme.de",
        "www.acme.de":           "acme.de",
        "":                      "",
    }
    for input, want := range cases {
        assert.Equal(t, want, NormalizeWebsite(input), "input=%q", input)
    }
}

func TestNormalizePhone(t *testing.T) {
    cases := map[string]string{
        "+49 30 1234567": "0301234567",
        "0049301234567":  "0301234567",
        "030 1234567":    "0301234567",
        "":                "",
    }
    for input, want := range cases {
        assert.Equal(t, want, NormalizePhone(input), "input=%q", input)
    }
}

func TestTokenSetRatio(t *testing.T) {
    assert.Equal(t, 1.0, TokenSetRatio("Cafe Sonnenschein", "cafe sonnenschein"))
    assert.Greater(t, TokenSetRatio("Restaurant Zur Post", "Zur Post Restaurant GmbH"), 0.85)
    assert.Less(t, TokenSetRatio("Bakery Schmidt", "Garage Mueller"), 0.5)
    assert.Equal(t, 0.0, TokenSetRatio("", "anything"))
}

func TestHaversineDistanceM(t *testing.T) {
    // Two points ~1km apart along a line of longitude near Berlin.
    d := HaversineDistanceM(52.5200, 13.4050, 52.5290, 13.4050)
    assert.InDelta(t, 1000, d, 100)

    same := HaversineDistanceM(52.5200, 13.4050, 52.5200, 13.4050)
    assert.InDelta(t, 0, same, 0.001)
}
