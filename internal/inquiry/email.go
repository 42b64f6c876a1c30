package inquiry

import (
	"bytes"
	"html/template"
)

const (
	missingDate  = "Не е посочена"
	missingValue = "-"
)

var emailTemplate = template.Must(template.New("inquiry").Parse(`<div style="margin:0; padding:24px; background:#f5eee5; font-family:Arial, Helvetica, sans-serif; color:#3d2a20;">
  <div style="max-width:680px; margin:0 auto; border:1px solid #e7d7c6; border-radius:16px; overflow:hidden; background:#fff;">
    <div style="padding:18px 22px; background:#A3132C; color:#fff;">
      <h2 style="margin:0; font-size:22px; line-height:1.2;">Ново запитване</h2>
    </div>
    <div style="padding:18px 22px; border-bottom:1px solid #f0e4d9;">
      <p style="margin:0 0 8px; font-size:14px;"><strong>Продукт:</strong> {{.ProductTitle}}</p>
      <p style="margin:0 0 8px; font-size:14px;"><strong>Product ID:</strong> {{.ProductID}}</p>
      <p style="margin:0 0 8px; font-size:14px;"><strong>Имейл:</strong> {{.Email}}</p>
      <p style="margin:0 0 8px; font-size:14px;"><strong>Телефон:</strong> {{.Phone}}</p>
      <p style="margin:0; font-size:14px;"><strong>Допълнителна информация:</strong> {{.AdditionalInfo}}</p>
    </div>
    <div style="padding:18px 22px;">
      <h3 style="margin:0 0 12px; font-size:18px; line-height:1.3; color:#5A3B2A;">Отговори от формата</h3>
      <ul style="padding:0; margin:0; list-style:none;">
{{- range .Answers}}
        <li style="margin:0 0 12px; padding:12px 14px; border:1px solid #e7d7c6; border-radius:12px; background:#fff;">
          <div style="font-size:15px; line-height:1.4; font-weight:700; color:#5A3B2A; margin-bottom:6px;">{{.Question}}</div>
{{- if .IsDate}}
          <div style="font-size:14px; line-height:1.5; color:#3d2a20;"><strong>Дата:</strong> {{.DateOrMissing}}</div>
{{- if .Text}}
          <div style="font-size:14px; line-height:1.5; color:#3d2a20;"><strong>Бележка:</strong> {{.Text}}</div>
{{- end}}
{{- else}}
          <div style="font-size:14px; line-height:1.5; color:#3d2a20;">{{.ValueOrMissing}}</div>
{{- end}}
        </li>
{{- end}}
      </ul>
    </div>
  </div>
</div>
`))

type emailData struct {
	ProductTitle   string
	ProductID      string
	Email          string
	Phone          string
	AdditionalInfo string
	Answers        []Answer
}

func renderEmail(data emailData) (string, error) {
	if data.AdditionalInfo == "" {
		data.AdditionalInfo = missingValue
	}
	var buf bytes.Buffer
	if err := emailTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
