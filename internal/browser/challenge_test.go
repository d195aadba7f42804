package browser

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseChallenge(t *testing.T) {
	raw := tinyPNG(t)
	src := "data:image/png;base64," + base64.StdEncoding.EncodeToString(raw)

	challenge, err := ParseChallenge(src, "  가게의 <b>전화번호</b>는\n무엇입니까?  ")
	require.NoError(t, err)
	require.Equal(t, raw, challenge.Image)
	require.Equal(t, "image/png", challenge.MimeType)
	require.Equal(t, "가게의 전화번호는 무엇입니까?", challenge.Question)

	challenge, err = ParseChallenge(src, "Tom & Jerry's shop")
	require.NoError(t, err)
	require.Equal(t, "Tom & Jerry's shop", challenge.Question)
}

func TestParseChallengeRejectsMalformedInput(t *testing.T) {
	encoded := base64.StdEncoding.EncodeToString(tinyPNG(t))

	cases := map[string][2]string{
		"missing scheme":  {"https://example.com/captcha.png", "q"},
		"no payload":      {"data:image/png;base64,", "q"},
		"not base64 flag": {"data:image/png," + encoded, "q"},
		"bad base64":      {"data:image/png;base64,@@@", "q"},
		"not an image":    {"data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte("plain text")), "q"},
		"blank question":  {"data:image/png;base64," + encoded, " <i></i> "},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseChallenge(tc[0], tc[1])
			require.ErrorIs(t, err, ErrExtraction)
		})
	}
}

func TestSessionConfigDefaults(t *testing.T) {
	cfg := SessionConfig{}
	cfg.applyDefaults()
	require.Equal(t, "captchaimg", cfg.ImageID)
	require.Equal(t, "captcha_info", cfg.QuestionID)
	require.Equal(t, "10s", cfg.WaitTimeout.String())
}

func tinyPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}
