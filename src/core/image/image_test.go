package image

import (
	"bytes"
	"encoding/base64"
	"errors"
	stdimage "image"
	"image/jpeg"
	"image/png"
	"testing"

	"deepspace-observatory/src/configs"
	"deepspace-observatory/src/core/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func jpegBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, stdimage.NewRGBA(stdimage.Rect(0, 0, w, h)), &jpeg.Options{Quality: 90}))
	return buf.Bytes()
}

func TestParseDataURL(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		format  string
		data    string
		wantErr error
	}{
		{"jpeg", "data:image/jpeg;base64,QUJD", "jpeg", "QUJD", nil},
		{"jpg别名", "data:image/jpg;base64,QUJD", "jpeg", "QUJD", nil},
		{"png", "data:image/png;base64,QUJD", "png", "QUJD", nil},
		{"空字符串", "", "", "", ErrEmptyPayload},
		{"空数据", "data:image/png;base64,", "", "", ErrEmptyPayload},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDataURL(tt.input)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.format, got.Format)
			assert.Equal(t, tt.data, got.Data)
		})
	}

	for _, bad := range []string{"http://x/y.jpg", "data:image/png,abc", "data:text/plain;base64,QUJD", "data:image/png;base64"} {
		_, err := ParseDataURL(bad)
		assert.Error(t, err, bad)
	}
}

func TestEncodeDataURLRoundTrip(t *testing.T) {
	raw := jpegBytes(t, 4, 4)
	url := EncodeDataURL("jpeg", raw)
	assert.Contains(t, url, "data:image/jpeg;base64,")

	data, err := ParseDataURL(url)
	require.NoError(t, err)
	back, err := data.Bytes()
	require.NoError(t, err)
	assert.Equal(t, raw, back)
}

func TestPayloadProcessor(t *testing.T) {
	logger := utils.NewWriterLogger(nil, "debug")
	p := NewPayloadProcessor(&configs.SecurityConfig{MaxWidth: 100, MaxHeight: 100, EnableDeepScan: true}, logger)

	data, err := p.ProcessDataURL(EncodeDataURL("jpeg", jpegBytes(t, 40, 30)))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", data.Format)

	_, err = p.ProcessDataURL(EncodeDataURL("jpeg", jpegBytes(t, 200, 30)))
	assert.ErrorContains(t, err, "尺寸超限")

	exe := append([]byte{0x4D, 0x5A}, make([]byte, 64)...)
	_, err = p.ProcessDataURL("data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(exe))
	assert.Error(t, err)

	_, err = p.ProcessDataURL("")
	assert.True(t, errors.Is(err, ErrEmptyPayload))

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, stdimage.NewGray(stdimage.Rect(0, 0, 8, 8))))
	data, err = p.ProcessUpload(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, "png", data.Format)
	assert.Equal(t, "image/png", data.MIMEType())

	m := p.GetMetrics()
	assert.Equal(t, int64(5), m.TotalProcessed)
	assert.Equal(t, int64(4), m.DataURLs)
	assert.Equal(t, int64(1), m.Uploads)
	assert.Equal(t, int64(3), m.FailedValidations)
	assert.Equal(t, int64(1), m.SecurityIncidents)
}

func TestValidator_FormatAllowList(t *testing.T) {
	v := NewImageSecurityValidator(&configs.SecurityConfig{AllowedFormats: []string{"png"}}, utils.NewWriterLogger(nil, "info"))
	res := v.Validate(jpegBytes(t, 4, 4), "")
	assert.False(t, res.IsValid)

	res = v.Validate(jpegBytes(t, 4, 4), "jpeg")
	assert.False(t, res.IsValid)
	assert.NotEmpty(t, res.SecurityRisk)
}
