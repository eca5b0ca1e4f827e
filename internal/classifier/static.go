package classifier

import (
	"encoding/json"
	"fmt"
	"strings"

	"repolaunch-server/internal/model"
)

// DetectStatic runs deterministic manifest analysis over the repository
// signals. It returns nil when no deterministic marker exists, in which case
// the caller falls back to the AI classifier. When it does return a result,
// that result overrides whatever the classifier would have said: a parseable
// manifest beats a probabilistic guess.
func DetectStatic(signals *Signals) *Result {
	detectors := []func(*Signals) *Result{
		detectNode,
		detectPython,
		detectGo,
		detectRust,
		detectRuby,
		detectPHP,
		detectJava,
		detectDocker,
		detectStaticSite,
	}
	for _, detect := range detectors {
		if result := detect(signals); result != nil {
			return result
		}
	}
	return nil
}

// packageJSON is the subset of package.json the detector reads.
type packageJSON struct {
	Name    string            `json:"name"`
	Scripts map[string]string `json:"scripts"`
}

func detectNode(signals *Signals) *Result {
	content, ok := signals.ConfigFiles["package.json"]
	if !ok {
		return nil
	}
	var pkg packageJSON
	if err := json.Unmarshal([]byte(content), &pkg); err != nil {
		// Unparseable manifest is not a deterministic signal.
		return nil
	}

	env := model.EnvironmentConfig{
		Type:           "nodejs",
		Name:           "Node.js",
		Port:           3000,
		InstallCommand: "npm install",
		StartCommand:   "npm start",
		Env:            map[string]string{"PORT": "3000", "HOST": "0.0.0.0"},
		ExposePort:     true,
	}
	if pkg.Name != "" {
		env.Name = fmt.Sprintf("Node.js (%s)", pkg.Name)
	}
	if _, ok := pkg.Scripts["build"]; ok {
		env.BuildCommand = "npm run build"
	}
	if _, ok := pkg.Scripts["start"]; !ok {
		if _, ok := pkg.Scripts["dev"]; ok {
			env.StartCommand = "npm run dev"
		} else {
			env.StartCommand = "node index.js"
		}
	}

	return &Result{
		Config:     env,
		Confidence: 1.0,
		Reasoning:  "package.json with declared scripts",
		Source:     "static",
	}
}

func detectPython(signals *Signals) *Result {
	_, hasReqs := signals.ConfigFiles["requirements.txt"]
	_, hasPyproject := signals.ConfigFiles["pyproject.toml"]
	if !hasReqs && !hasPyproject {
		return nil
	}

	env := model.EnvironmentConfig{
		Type:       "python",
		Name:       "Python",
		Port:       8000,
		Env:        map[string]string{"PORT": "8000"},
		ExposePort: true,
	}
	if hasReqs {
		env.InstallCommand = "pip install -r requirements.txt"
	} else {
		env.InstallCommand = "pip install ."
	}

	switch {
	case hasFile(signals, "manage.py"):
		env.Name = "Python (Django)"
		env.StartCommand = "python manage.py runserver 0.0.0.0:8000"
	case hasFile(signals, "app.py"):
		env.StartCommand = "python app.py"
	case hasFile(signals, "main.py"):
		env.StartCommand = "python main.py"
	default:
		env.StartCommand = "python -m http.server 8000"
	}

	return &Result{
		Config:     env,
		Confidence: 1.0,
		Reasoning:  "python dependency manifest present",
		Source:     "static",
	}
}

func detectGo(signals *Signals) *Result {
	if _, ok := signals.ConfigFiles["go.mod"]; !ok {
		return nil
	}
	return &Result{
		Config: model.EnvironmentConfig{
			Type:         "go",
			Name:         "Go",
			Port:         8080,
			BuildCommand: "go build -o /tmp/app .",
			StartCommand: "/tmp/app",
			Env:          map[string]string{"PORT": "8080"},
			ExposePort:   true,
		},
		Confidence: 1.0,
		Reasoning:  "go.mod present",
		Source:     "static",
	}
}

func detectRust(signals *Signals) *Result {
	if _, ok := signals.ConfigFiles["Cargo.toml"]; !ok {
		return nil
	}
	return &Result{
		Config: model.EnvironmentConfig{
			Type:         "rust",
			Name:         "Rust",
			Port:         8000,
			BuildCommand: "cargo build --release",
			StartCommand: "cargo run --release",
			Env:          map[string]string{"PORT": "8000"},
			ExposePort:   true,
		},
		Confidence: 1.0,
		Reasoning:  "Cargo.toml present",
		Source:     "static",
	}
}

func detectRuby(signals *Signals) *Result {
	content, ok := signals.ConfigFiles["Gemfile"]
	if !ok {
		return nil
	}
	env := model.EnvironmentConfig{
		Type:           "ruby",
		Name:           "Ruby",
		Port:           3000,
		InstallCommand: "bundle install",
		StartCommand:   "bundle exec rackup -o 0.0.0.0 -p 3000",
		Env:            map[string]string{"PORT": "3000"},
		ExposePort:     true,
	}
	if strings.Contains(content, "rails") {
		env.Name = "Ruby on Rails"
		env.StartCommand = "bundle exec rails server -b 0.0.0.0 -p 3000"
	}
	return &Result{
		Config:     env,
		Confidence: 1.0,
		Reasoning:  "Gemfile present",
		Source:     "static",
	}
}

func detectPHP(signals *Signals) *Result {
	if _, ok := signals.ConfigFiles["composer.json"]; !ok {
		return nil
	}
	return &Result{
		Config: model.EnvironmentConfig{
			Type:           "php",
			Name:           "PHP",
			Port:           8000,
			InstallCommand: "composer install --no-interaction",
			StartCommand:   "php -S 0.0.0.0:8000",
			ExposePort:     true,
		},
		Confidence: 1.0,
		Reasoning:  "composer.json present",
		Source:     "static",
	}
}

func detectJava(signals *Signals) *Result {
	_, hasMaven := signals.ConfigFiles["pom.xml"]
	_, hasGradle := signals.ConfigFiles["build.gradle"]
	if !hasMaven && !hasGradle {
		return nil
	}
	env := model.EnvironmentConfig{
		Type:       "java",
		Name:       "Java",
		Port:       8080,
		Env:        map[string]string{"PORT": "8080"},
		ExposePort: true,
	}
	if hasMaven {
		env.Name = "Java (Maven)"
		env.BuildCommand = "mvn -q package -DskipTests"
		env.StartCommand = "java -jar target/*.jar"
	} else {
		env.Name = "Java (Gradle)"
		env.BuildCommand = "gradle build -x test"
		env.StartCommand = "gradle run"
	}
	return &Result{
		Config:     env,
		Confidence: 1.0,
		Reasoning:  "JVM build manifest present",
		Source:     "static",
	}
}

func detectDocker(signals *Signals) *Result {
	if _, ok := signals.ConfigFiles["Dockerfile"]; !ok {
		return nil
	}
	return &Result{
		Config: model.EnvironmentConfig{
			Type:         "docker",
			Name:         "Docker",
			Port:         8080,
			BuildCommand: "docker build -t app .",
			StartCommand: "docker run --rm -p 8080:8080 app",
			ExposePort:   true,
		},
		Confidence: 1.0,
		Reasoning:  "Dockerfile present",
		Source:     "static",
	}
}

func detectStaticSite(signals *Signals) *Result {
	if !hasFile(signals, "index.html") {
		return nil
	}
	return &Result{
		Config: model.EnvironmentConfig{
			Type:         "static",
			Name:         "Static site",
			Port:         8080,
			StartCommand: "python3 -m http.server 8080",
			ExposePort:   true,
		},
		Confidence: 1.0,
		Reasoning:  "index.html at repository root",
		Source:     "static",
	}
}

func hasFile(signals *Signals, name string) bool {
	for _, p := range signals.FilePaths {
		if p == name {
			return true
		}
	}
	return false
}

// LogLine renders the provenance line recorded in session logs regardless of
// which source supplied the final configuration.
func (r *Result) LogLine() string {
	return fmt.Sprintf("environment: %s via %s (confidence %.2f): %s",
		r.Config.Type, r.Source, r.Confidence, r.Reasoning)
}
