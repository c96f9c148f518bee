package validation

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
)

func TestValidatePath(t *testing.T) {
	tests := []struct {
		name      string
		path      string
		root      string
		want      string
		wantError error
	}{
		{
			name: "simple relative path no root",
			path: "rules/sub/file.json",
			want: filepath.Join("rules", "sub", "file.json"),
		},
		{
			name: "redundant separators cleaned",
			path: "rules//file.json",
			want: filepath.Join("rules", "file.json"),
		},
		{
			name: "dot component cleaned",
			path: "./file.json",
			want: "file.json",
		},
		{
			name:      "parent traversal",
			path:      "../../../etc/passwd",
			wantError: ErrPathTraversal,
		},
		{
			name:      "traversal in middle",
			path:      "rules/../../etc/passwd",
			wantError: ErrPathTraversal,
		},
		{
			name:      "empty path",
			path:      "",
			wantError: ErrEmptyPath,
		},
		{
			name:      "very long path",
			path:      strings.Repeat("a", MaxPathLength+1),
			wantError: ErrPathTooLong,
		},
		{
			name: "inside root",
			path: "sub/file.json",
			root: "/tmp/workspace",
			want: filepath.Join("sub", "file.json"),
		},
		{
			name:      "absolute path outside root",
			path:      "/etc/passwd",
			root:      "/tmp/workspace",
			wantError: ErrOutsideRoot,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ValidatePath(tt.path, tt.root)
			if tt.wantError != nil {
				if !errors.Is(err, tt.wantError) {
					t.Fatalf("ValidatePath() error = %v, want %v", err, tt.wantError)
				}
				return
			}
			if err != nil {
				t.Fatalf("ValidatePath() unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("ValidatePath() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestValidateExtension(t *testing.T) {
	allowed := []string{".json"}

	tests := []struct {
		name    string
		path    string
		allowed []string
		wantErr bool
	}{
		{name: "json lowercase", path: "rules.json", allowed: allowed},
		{name: "json uppercase", path: "RULES.JSON", allowed: allowed},
		{name: "mixed case", path: "rules.Json", allowed: allowed},
		{name: "allow list without dot", path: "rules.json", allowed: []string{"json"}},
		{name: "wrong extension", path: "rules.yaml", allowed: allowed, wantErr: true},
		{name: "no extension", path: "rules", allowed: allowed, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateExtension(tt.path, tt.allowed)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidExtension) {
					t.Errorf("ValidateExtension() error = %v, want ErrInvalidExtension", err)
				}
				return
			}
			if err != nil {
				t.Errorf("ValidateExtension() unexpected error: %v", err)
			}
		})
	}
}

func TestSanitizeArgument(t *testing.T) {
	tests := []struct {
		name string
		arg  string
		want string
	}{
		{name: "clean value unchanged", arg: "console,json", want: "console,json"},
		{name: "empty yields empty", arg: "", want: ""},
		{name: "shell metacharacters stripped", arg: "console;rm -rf /tmp", want: "consolerm -rf /tmp"},
		{name: "command substitution stripped", arg: "a$(whoami)b", want: "awhoamib"},
		{name: "backticks and quotes stripped", arg: "`id` \"x\" 'y'", want: "id x y"},
		{name: "pipes and redirects stripped", arg: "a|b>c<d&e", want: "abcde"},
		{name: "newlines stripped", arg: "one\ntwo\r", want: "onetwo"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeArgument(tt.arg); got != tt.want {
				t.Errorf("SanitizeArgument(%q) = %q, want %q", tt.arg, got, tt.want)
			}
		})
	}
}

func TestValidateVersion(t *testing.T) {
	tests := []struct {
		name    string
		version string
		want    string
	}{
		{name: "latest passes through", version: "latest", want: "latest"},
		{name: "valid tag", version: "v1.2.3", want: "v1.2.3"},
		{name: "valid tag with big numbers", version: "v10.20.30", want: "v10.20.30"},
		{name: "missing v prefix", version: "1.2.3", want: "latest"},
		{name: "missing patch", version: "v1.2", want: "latest"},
		{name: "prerelease suffix", version: "v1.2.3-beta", want: "latest"},
		{name: "garbage", version: "not-a-version", want: "latest"},
		{name: "injection attempt", version: "v1.2.3;rm", want: "latest"},
		{name: "empty", version: "", want: "latest"},
		{name: "whitespace trimmed", version: "  v1.2.3  ", want: "v1.2.3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValidateVersion(tt.version); got != tt.want {
				t.Errorf("ValidateVersion(%q) = %q, want %q", tt.version, got, tt.want)
			}
		})
	}
}

func TestValidateRulesFileName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "bare filename", input: "rules.json", want: "rules.json"},
		{name: "name with hyphens and underscores", input: "my-rules_v2.json", want: "my-rules_v2.json"},
		{name: "path prefix stripped", input: "some/dir/rules.json", want: "rules.json"},
		{name: "backslash prefix stripped", input: `dir\rules.json`, want: "rules.json"},
		{name: "traversal rejected", input: "../rules.json", wantErr: true},
		{name: "wrong extension", input: "rules.yaml", wantErr: true},
		{name: "space in name", input: "my rules.json", wantErr: true},
		{name: "shell characters", input: "ru;les.json", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ValidateRulesFileName(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidFilename) {
					t.Fatalf("ValidateRulesFileName(%q) error = %v, want ErrInvalidFilename", tt.input, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ValidateRulesFileName(%q) unexpected error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ValidateRulesFileName(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestValidateFolderName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "simple name", input: "my-rules_2024", want: "my-rules_2024"},
		{name: "spaces inside kept", input: "my rules", want: "my rules"},
		{name: "surrounding whitespace trimmed", input: "  my rules  ", want: "my rules"},
		{name: "reserved upper", input: "CON", wantErr: true},
		{name: "reserved lower", input: "con", wantErr: true},
		{name: "reserved mixed", input: "CoM1", wantErr: true},
		{name: "empty", input: "", wantErr: true},
		{name: "only whitespace", input: "   ", wantErr: true},
		{name: "path separator", input: "a/b", wantErr: true},
		{name: "backslash", input: `a\b`, wantErr: true},
		{name: "traversal", input: "..", wantErr: true},
		{name: "special characters", input: "rules!", wantErr: true},
		{name: "control character", input: "ru\x01les", wantErr: true},
		{name: "too long", input: strings.Repeat("a", MaxFolderNameLength+1), wantErr: true},
		{name: "exactly max length", input: strings.Repeat("a", MaxFolderNameLength), want: strings.Repeat("a", MaxFolderNameLength)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ValidateFolderName(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidFolder) {
					t.Fatalf("ValidateFolderName(%q) error = %v, want ErrInvalidFolder", tt.input, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ValidateFolderName(%q) unexpected error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ValidateFolderName(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
