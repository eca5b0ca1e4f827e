package classifier

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectStaticNode(t *testing.T) {
	result := DetectStatic(&Signals{
		ConfigFiles: map[string]string{
			"package.json": `{"name":"demo","scripts":{"start":"node server.js","build":"webpack"}}`,
		},
	})
	require.NotNil(t, result)
	assert.Equal(t, "static", result.Source)
	assert.Equal(t, "nodejs", result.Config.Type)
	assert.Equal(t, "Node.js (demo)", result.Config.Name)
	assert.Equal(t, "npm install", result.Config.InstallCommand)
	assert.Equal(t, "npm run build", result.Config.BuildCommand)
	assert.Equal(t, "npm start", result.Config.StartCommand)
	assert.Equal(t, 3000, result.Config.Port)
	assert.True(t, result.Config.ExposePort)
}

func TestDetectStaticNodeDevFallback(t *testing.T) {
	result := DetectStatic(&Signals{
		ConfigFiles: map[string]string{
			"package.json": `{"scripts":{"dev":"vite"}}`,
		},
	})
	require.NotNil(t, result)
	assert.Equal(t, "npm run dev", result.Config.StartCommand)
	assert.Empty(t, result.Config.BuildCommand)
}

func TestDetectStaticUnparseableManifest(t *testing.T) {
	// A broken package.json is not a deterministic signal; the caller should
	// fall back to the classifier.
	result := DetectStatic(&Signals{
		ConfigFiles: map[string]string{"package.json": "{not json"},
	})
	assert.Nil(t, result)
}

func TestDetectStaticPythonDjango(t *testing.T) {
	result := DetectStatic(&Signals{
		FilePaths:   []string{"manage.py", "requirements.txt"},
		ConfigFiles: map[string]string{"requirements.txt": "django==5.0"},
	})
	require.NotNil(t, result)
	assert.Equal(t, "python", result.Config.Type)
	assert.Equal(t, "Python (Django)", result.Config.Name)
	assert.Equal(t, "pip install -r requirements.txt", result.Config.InstallCommand)
	assert.Equal(t, "python manage.py runserver 0.0.0.0:8000", result.Config.StartCommand)
}

func TestDetectStaticGo(t *testing.T) {
	result := DetectStatic(&Signals{
		ConfigFiles: map[string]string{"go.mod": "module example.com/app\n\ngo 1.21\n"},
	})
	require.NotNil(t, result)
	assert.Equal(t, "go", result.Config.Type)
	assert.Equal(t, "go build -o /tmp/app .", result.Config.BuildCommand)
	assert.Equal(t, 8080, result.Config.Port)
}

func TestDetectStaticRails(t *testing.T) {
	result := DetectStatic(&Signals{
		ConfigFiles: map[string]string{"Gemfile": `gem "rails", "~> 7.1"`},
	})
	require.NotNil(t, result)
	assert.Equal(t, "Ruby on Rails", result.Config.Name)
	assert.Contains(t, result.Config.StartCommand, "rails server")
}

func TestDetectStaticSite(t *testing.T) {
	result := DetectStatic(&Signals{
		FilePaths: []string{"index.html", "style.css"},
	})
	require.NotNil(t, result)
	assert.Equal(t, "static", result.Config.Type)
	assert.Empty(t, result.Config.InstallCommand)
}

func TestDetectStaticNoSignal(t *testing.T) {
	result := DetectStatic(&Signals{
		FilePaths:   []string{"README.md", "notes.txt"},
		ConfigFiles: map[string]string{},
	})
	assert.Nil(t, result)
}

func TestDetectStaticNodeBeatsDocker(t *testing.T) {
	// Detector order is deliberate: a language manifest is more specific
	// than a Dockerfile sitting next to it.
	result := DetectStatic(&Signals{
		ConfigFiles: map[string]string{
			"package.json": `{"scripts":{"start":"node ."}}`,
			"Dockerfile":   "FROM node:20",
		},
	})
	require.NotNil(t, result)
	assert.Equal(t, "nodejs", result.Config.Type)
}

func TestParseClassifiedEnv(t *testing.T) {
	result, err := parseClassifiedEnv(`{"type":"python","name":"Flask","port":5000,` +
		`"install_command":"pip install -r requirements.txt","build_command":"",` +
		`"start_command":"python app.py","env":{"PORT":"5000"},"expose_port":true,` +
		`"confidence":0.85,"reasoning":"flask import in app.py"}`)
	require.NoError(t, err)
	assert.Equal(t, "classifier", result.Source)
	assert.Equal(t, "python", result.Config.Type)
	assert.Equal(t, 5000, result.Config.Port)
	assert.InDelta(t, 0.85, result.Confidence, 0.001)
}

func TestParseClassifiedEnvStripsFences(t *testing.T) {
	result, err := parseClassifiedEnv("```json\n" +
		`{"type":"static","start_command":"python3 -m http.server","expose_port":true}` +
		"\n```")
	require.NoError(t, err)
	assert.Equal(t, "static", result.Config.Type)
	// Missing port falls back to the default.
	assert.Equal(t, 8080, result.Config.Port)
}

func TestParseClassifiedEnvRejectsMissingStart(t *testing.T) {
	_, err := parseClassifiedEnv(`{"type":"nodejs","port":3000}`)
	assert.Error(t, err)
}

func TestResultLogLine(t *testing.T) {
	r := &Result{
		Confidence: 1,
		Reasoning:  "go.mod present",
		Source:     "static",
	}
	r.Config.Type = "go"
	assert.Equal(t, "environment: go via static (confidence 1.00): go.mod present", r.LogLine())
}
