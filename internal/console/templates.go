package console

import (
	"html/template"
	"slices"
	"strings"
)

var pageTemplates = template.Must(template.New("pages").Funcs(template.FuncMap{
	"join":     strings.Join,
	"contains": slices.Contains[[]string],
}).Parse(`
{{define "header"}}<!doctype html>
<html><head><meta charset="utf-8"><title>userdesk</title></head><body>
{{if .Error}}<p class="error">{{.Error}}</p>{{end}}
{{if .Notice}}<p class="notice">{{.Notice}}</p>{{end}}
{{end}}

{{define "footer"}}</body></html>{{end}}

{{define "login"}}{{template "header" .}}
<h1>Sign in</h1>
{{if .Passwords}}
<form method="post" action="{{.LoginPath}}">
  <input type="hidden" name="next" value="{{.Next}}">
  <label>Email <input name="email" type="email" value="{{.Email}}" required></label>
  <label>Password <input name="password" type="password" required></label>
  <button type="submit">Sign in</button>
</form>
<h2>Or paste an access token</h2>
{{end}}
<form method="post" action="{{.LoginPath}}">
  <input type="hidden" name="next" value="{{.Next}}">
  <label>Access token <textarea name="token" rows="6" cols="80" required></textarea></label>
  <button type="submit">Sign in</button>
</form>
{{template "footer" .}}{{end}}

{{define "users"}}{{template "header" .}}
<header>
  <span>Signed in as {{.Session.Identity}}{{if .Session.Roles}} ({{join .Session.Roles ", "}}){{end}}</span>
  <form method="post" action="/logout"><button type="submit">Sign out</button></form>
</header>
<h1>User Management</h1>
<table>
  <thead><tr><th>ID</th><th>Name</th><th>Email</th><th>Roles</th><th>Active</th><th>Actions</th></tr></thead>
  <tbody>
  {{- $roles := .Roles}}
  {{- range .Users}}
  <tr>
    <td>{{.ID}}</td><td>{{.Name}}</td><td>{{.Email}}</td><td>{{join .Roles ", "}}</td>
    <td>{{if .Active}}Active{{else}}Inactive{{end}}</td>
    <td>
      <form method="post" action="/users/{{.ID}}">
        <input name="name" value="{{.Name}}" required>
        <input name="email" type="email" value="{{.Email}}" required>
        <input name="password" type="password" placeholder="leave blank to keep">
        {{- $user := .}}
        {{- range $roles}}<label><input type="checkbox" name="roles" value="{{.}}"{{if contains $user.Roles .}} checked{{end}}>{{.}}</label>{{end}}
        <label><input type="checkbox" name="active"{{if .Active}} checked{{end}}>Active</label>
        <button type="submit">Save</button>
      </form>
      <form method="post" action="/users/{{.ID}}/delete"><button type="submit">Delete</button></form>
    </td>
  </tr>
  {{- else}}
  <tr><td colspan="6">No users</td></tr>
  {{- end}}
  </tbody>
</table>
<h2>Add User</h2>
<form method="post" action="/users">
  <input name="name" placeholder="Name" required>
  <input name="email" type="email" placeholder="Email" required>
  <input name="password" type="password" placeholder="Password" required>
  {{- range .Roles}}<label><input type="checkbox" name="roles" value="{{.}}">{{.}}</label>{{end}}
  <label><input type="checkbox" name="active" checked>Active</label>
  <button type="submit">Add User</button>
</form>
{{template "footer" .}}{{end}}
`))
