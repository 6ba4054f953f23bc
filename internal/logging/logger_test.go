package logging

import (
	"bytes"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestInitPrefixesAppNameAndTagsComponent(t *testing.T) {
	var buf bytes.Buffer
	Init("inquiry-api", "debug", &buf)

	For("inquiry").Info("Submit successful")

	out := buf.String()
	assert.Contains(t, out, "[inquiry-api] Submit successful")
	assert.Contains(t, out, "component=inquiry")
	assert.Equal(t, logrus.DebugLevel, Logger.GetLevel())
}

func TestInitFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	Init("inquiry-api", "shouting", &buf)

	assert.Equal(t, logrus.InfoLevel, Logger.GetLevel())

	Init("inquiry-api", "", &buf)
	For("x").Info("once")
	assert.Equal(t, 1, bytes.Count(buf.Bytes(), []byte("[inquiry-api] once")))
}
