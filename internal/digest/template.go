package digest

const emailTpl = `<!DOCTYPE html>
<html>
<head>
  <meta http-equiv="Content-Type" content="text/html; charset=UTF-8" />
  <style>
    body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
    .header { background-color: #1a365d; color: white; padding: 20px; text-align: center; }
    .intro { margin: 20px 0; color: #2d3748; }
    .article { margin: 20px 0; padding: 15px; border-left: 4px solid #2d3748; background-color: #f7fafc; }
    .title { font-size: 18px; font-weight: bold; color: #2d3748; margin-bottom: 10px; }
    .link { color: #3182ce; text-decoration: none; }
    .link:hover { text-decoration: underline; }
    .published { color: #718096; font-size: 14px; margin-bottom: 10px; }
    .summary { color: #4a5568; }
    .footer { text-align: center; margin-top: 30px; color: #718096; }
    .unsubscribe { font-size: 12px; color: #a0aec0; }
  </style>
</head>
<body>
  <div class="header">
    <h1>🛰️ {{.Title}}</h1>
    <p>Latest Articles - {{.Date}}</p>
  </div>
  {{if .Intro}}<div class="intro">{{.Intro}}</div>{{end}}
  {{range .Articles}}
  <div class="article">
    <div class="title">{{.Index}}. {{.Title}}</div>
    <div class="published">📅 Published: {{.Published}}</div>
    <div class="summary">📝 {{.Summary}}</div>
    <div style="margin-top: 10px;">
      <a href="{{.Link}}" class="link">🔗 Read full article</a>
    </div>
  </div>
  {{end}}
  <div class="footer">
    <p>{{.Footer}}</p>
    {{if .UnsubscribeURL}}<p class="unsubscribe"><a href="{{.UnsubscribeURL}}">Unsubscribe</a></p>{{end}}
  </div>
</body>
</html>`
