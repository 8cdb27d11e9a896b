package ui

import (
	"fmt"
	"html/template"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// Template functions available in all templates.
var templateFuncs = template.FuncMap{
	"formatTime": func(t time.Time) string {
		if t.IsZero() {
			return "-"
		}
		return t.Format("2006-01-02 15:04:05")
	},
	"formatRelative": formatRelative,
	"formatBytes":    formatBytes,
	"truncate": func(s string, n int) string {
		if len(s) <= n {
			return s
		}
		return s[:n] + "..."
	},
}

func formatBytes(n int64) string {
	return humanize.IBytes(uint64(n))
}

func formatRelative(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return humanize.Time(t)
}

func renderTemplate(w io.Writer, name string, data map[string]any) error {
	// Get the template content.
	content, ok := templates[name]
	if !ok {
		return fmt.Errorf("template not found: %s", name)
	}

	// Get the layout template.
	layout, ok := templates["layout"]
	if !ok {
		return fmt.Errorf("layout template not found")
	}

	// Parse templates.
	tmpl, err := template.New("layout").Funcs(templateFuncs).Parse(layout)
	if err != nil {
		return fmt.Errorf("parse layout: %w", err)
	}

	_, err = tmpl.New("content").Parse(content)
	if err != nil {
		return fmt.Errorf("parse content: %w", err)
	}

	// Add shared components.
	for compName, compContent := range templates {
		if strings.HasPrefix(compName, "components/") {
			_, err = tmpl.New(filepath.Base(compName)).Parse(compContent)
			if err != nil {
				return fmt.Errorf("parse component %s: %w", compName, err)
			}
		}
	}

	return tmpl.Execute(w, data)
}

// templates holds all template content, keyed by page name.
var templates = map[string]string{
	"layout": `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>{{.Title}}</title>
    <script src="https://cdn.tailwindcss.com"></script>
    <link rel="stylesheet" href="/static/app.css">
</head>
<body class="bg-gray-50 min-h-screen">
    {{if .Session}}
    <nav class="bg-white shadow-sm border-b">
        <div class="max-w-5xl mx-auto px-4 sm:px-6 lg:px-8">
            <div class="flex justify-between h-16">
                <div class="flex">
                    <a href="{{.Session.HomePath}}" class="flex items-center px-2 py-2 text-xl font-bold text-indigo-600">
                        Gatehouse
                    </a>
                </div>
                <div class="flex items-center">
                    <span class="text-sm text-gray-500 mr-4">{{.Session.Username}} ({{.Session.Role}})</span>
                    <a href="/logout" class="text-sm text-gray-500 hover:text-gray-700">Logout</a>
                </div>
            </div>
        </div>
    </nav>
    {{end}}

    <main class="max-w-5xl mx-auto py-6 sm:px-6 lg:px-8">
        {{template "content" .}}
    </main>
</body>
</html>`,

	"components/flash": `{{define "flash"}}
{{if .Error}}
<div class="rounded-md bg-red-50 p-4">
    <div class="text-sm text-red-700">{{.Error}}</div>
</div>
{{end}}
{{if .Message}}
<div class="rounded-md bg-green-50 p-4">
    <div class="text-sm text-green-700">{{.Message}}</div>
</div>
{{end}}
{{end}}`,

	"login": `{{define "content"}}
<div class="min-h-screen flex items-center justify-center bg-gray-50 py-12 px-4 sm:px-6 lg:px-8">
    <div class="max-w-md w-full space-y-8">
        <div>
            <h2 class="mt-6 text-center text-3xl font-extrabold text-gray-900">Gatehouse</h2>
            <p class="mt-2 text-center text-sm text-gray-600">Sign in to continue</p>
        </div>
        {{template "flash" .}}
        <form class="mt-8 space-y-6" action="/login" method="POST">
            <div class="rounded-md shadow-sm -space-y-px">
                <div>
                    <label for="username" class="sr-only">Username</label>
                    <input id="username" name="username" type="text" required
                           class="appearance-none rounded-none relative block w-full px-3 py-2 border border-gray-300 placeholder-gray-500 text-gray-900 rounded-t-md focus:outline-none focus:ring-indigo-500 focus:border-indigo-500 sm:text-sm"
                           placeholder="Username">
                </div>
                <div>
                    <label for="password" class="sr-only">Password</label>
                    <input id="password" name="password" type="password" required
                           class="appearance-none rounded-none relative block w-full px-3 py-2 border border-gray-300 placeholder-gray-500 text-gray-900 rounded-b-md focus:outline-none focus:ring-indigo-500 focus:border-indigo-500 sm:text-sm"
                           placeholder="Password">
                </div>
            </div>
            <div>
                <button type="submit"
                        class="group relative w-full flex justify-center py-2 px-4 border border-transparent text-sm font-medium rounded-md text-white bg-indigo-600 hover:bg-indigo-700">
                    Sign in
                </button>
            </div>
        </form>
    </div>
</div>
{{end}}`,

	"register": `{{define "content"}}
<div class="max-w-lg mx-auto bg-white shadow rounded-lg p-6 space-y-6">
    <h1 class="text-2xl font-bold text-gray-900">Register a new user</h1>
    {{template "flash" .}}
    <form id="register-form" action="/register" method="POST" enctype="multipart/form-data" class="space-y-4">
        <div>
            <label for="username" class="block text-sm font-medium text-gray-700">Username</label>
            <input id="username" name="username" type="text" required
                   class="mt-1 block w-full px-3 py-2 border border-gray-300 rounded-md sm:text-sm">
        </div>
        <div>
            <label for="password" class="block text-sm font-medium text-gray-700">Password</label>
            <input id="password" name="password" type="password" required
                   class="mt-1 block w-full px-3 py-2 border border-gray-300 rounded-md sm:text-sm">
        </div>
        <div>
            <label for="role" class="block text-sm font-medium text-gray-700">Role</label>
            <select id="role" name="role" class="mt-1 block w-full px-3 py-2 border border-gray-300 rounded-md sm:text-sm">
                <option value="user">user</option>
                <option value="admin">admin</option>
            </select>
        </div>
        <div>
            <label for="avatar" class="block text-sm font-medium text-gray-700">Avatar (optional)</label>
            <input id="avatar" name="avatar" type="file" accept=".png,.jpg,.jpeg,.gif" class="mt-1 block w-full text-sm">
            <p class="mt-1 text-xs text-gray-500">PNG, JPG or GIF, up to {{formatBytes .MaxUpload}}.</p>
        </div>
        <button type="submit"
                class="w-full py-2 px-4 border border-transparent text-sm font-medium rounded-md text-white bg-indigo-600 hover:bg-indigo-700">
            Create user
        </button>
    </form>
</div>
{{end}}`,

	"home": `{{define "content"}}
<div class="max-w-lg mx-auto bg-white shadow rounded-lg p-6 text-center space-y-4">
    <img src="{{.AvatarURL}}" alt="avatar" class="mx-auto h-32 w-32 rounded-full object-cover">
    <h1 class="text-2xl font-bold text-gray-900">Welcome, {{.Username}}!</h1>
    <p class="text-sm text-gray-500">Your session ends {{formatRelative .ExpiresAt}} without activity.</p>
</div>
{{end}}`,

	"forbidden": `{{define "content"}}
<div class="min-h-screen flex items-center justify-center">
    <div class="text-center">
        <h1 class="text-4xl font-bold text-gray-900 mb-4">403</h1>
        <p class="text-gray-600 mb-8">Access denied. You do not have permission to view this page.</p>
        <a href="/" class="text-indigo-600 hover:text-indigo-500">Return to start</a>
    </div>
</div>
{{end}}`,

	"notfound": `{{define "content"}}
<div class="min-h-screen flex items-center justify-center">
    <div class="text-center">
        <h1 class="text-4xl font-bold text-gray-900 mb-4">404</h1>
        <p class="text-gray-600 mb-8">Page {{truncate .Path 80}} not found.</p>
        <a href="/" class="text-indigo-600 hover:text-indigo-500">Return to start</a>
    </div>
</div>
{{end}}`,
}
