package server

import (
	"html/template"
	"time"
)

var templateFuncs = template.FuncMap{
	"datetime": func(t time.Time) string {
		if t.IsZero() {
			return "-"
		}
		return t.Format("2006-01-02 15:04")
	},
	"optdatetime": func(t *time.Time) string {
		if t == nil || t.IsZero() {
			return "-"
		}
		return t.Format("2006-01-02 15:04")
	},
}

const pagesTpl = `
{{define "head"}}<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8" />
  <meta name="viewport" content="width=device-width, initial-scale=1" />
  <title>{{.}}</title>
  <style>
    body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; max-width: 720px; margin: 0 auto; padding: 20px; }
    .header { background-color: #1a365d; color: white; padding: 20px; text-align: center; border-radius: 6px; }
    .stats { color: #718096; margin: 16px 0; }
    form { margin: 20px 0; }
    input { padding: 8px; margin: 4px 0; width: 100%; box-sizing: border-box; }
    button { background: #2d3748; color: #fff; border: none; padding: 10px 20px; border-radius: 4px; cursor: pointer; }
    #message { margin-top: 12px; font-weight: bold; }
    table { width: 100%; border-collapse: collapse; }
    th, td { text-align: left; padding: 6px; border-bottom: 1px solid #e2e8f0; font-size: 14px; }
    .inactive { color: #a0aec0; }
  </style>
</head>
<body>{{end}}

{{define "submit"}}
<script>
  document.querySelector("form").addEventListener("submit", async function (e) {
    e.preventDefault();
    const data = Object.fromEntries(new FormData(e.target).entries());
    const resp = await fetch(e.target.action, {
      method: "POST",
      headers: { "Content-Type": "application/json" },
      body: JSON.stringify(data),
    });
    const result = await resp.json();
    document.getElementById("message").textContent = result.message;
  });
</script>{{end}}

{{define "index"}}{{template "head" "Aerospace & Defense News"}}
  <div class="header">
    <h1>🛰️ Aerospace & Defense News</h1>
    <p>The latest aerospace and defense headlines, delivered to your inbox.</p>
  </div>
  <p class="stats">{{.Stats.Active}} active subscribers</p>
  <form action="/subscribe" method="post">
    <input type="email" name="email" placeholder="you@example.com" required />
    <input type="text" name="name" placeholder="Name (optional)" />
    <button type="submit">Subscribe</button>
  </form>
  <div id="message"></div>
{{template "submit"}}
</body>
</html>{{end}}

{{define "unsubscribe"}}{{template "head" "Unsubscribe"}}
  <div class="header">
    <h1>Unsubscribe</h1>
    <p>We are sorry to see you go.</p>
  </div>
  <form action="/unsubscribe" method="post">
    <input type="email" name="email" value="{{.Email}}" placeholder="you@example.com" />
    <input type="hidden" name="token" value="{{.Token}}" />
    <button type="submit">Unsubscribe</button>
  </form>
  <div id="message"></div>
{{template "submit"}}
</body>
</html>{{end}}

{{define "admin"}}{{template "head" "Subscribers"}}
  <div class="header">
    <h1>Subscribers</h1>
  </div>
  <p class="stats">
    Active: {{.Stats.Active}} · Inactive: {{.Stats.Inactive}} · Total: {{.Stats.Total}} ·
    Last updated: {{optdatetime .Stats.LastUpdated}}
  </p>
  <table>
    <tr><th>Email</th><th>Name</th><th>Subscribed</th><th>Status</th><th>Unsubscribed</th></tr>
    {{range .Subscribers}}
    <tr{{if not .Active}} class="inactive"{{end}}>
      <td>{{.Email}}</td>
      <td>{{.DisplayName}}</td>
      <td>{{datetime .SubscribedAt}}</td>
      <td>{{if .Active}}active{{else}}inactive{{end}}</td>
      <td>{{optdatetime .UnsubscribedAt}}</td>
    </tr>
    {{else}}
    <tr><td colspan="5">No subscribers yet.</td></tr>
    {{end}}
  </table>
</body>
</html>{{end}}
`
