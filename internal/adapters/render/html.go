package render

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	"github.com/jaytaylor/html2text"

	"fx-digest/internal/domain"
)

var _ domain.Renderer = (*HTML)(nil)

const activationTemplate = `<!DOCTYPE html>
<html>
<head>
<style>
body { font-family: Arial, Helvetica, sans-serif; font-size: 18px; }
.panel { margin-top: 15px; margin-bottom: 15px; padding: 5px 20px; }
.note { background-color: #ddd; border-left: 5px solid #4caf50; }
</style>
</head>
<body>
<p>Hola <strong>{{.FullName}}</strong>, para poder recibir los datos de la compra/venta de dólares en los bancos comerciales, debe presionar el siguiente enlace: <a href="{{.Link}}">Presione aquí</a>.</p>
<div class="panel note">
<p><strong>Nota:</strong> Una vez dado de alta en nuestro sistema, recibirá un correo diario con los datos de la compra/venta y un enlace al pie del correo con el cual podrá darse de baja de nuestro sistema. Si por alguna razón los datos de la compra/venta cambian, se volverá a enviar un correo con los nuevos datos.</p>
</div>
</body>
</html>`

const dailyTemplate = `<!DOCTYPE html>
<html>
<head>
<style>
body { font-family: Arial, Helvetica, sans-serif; padding: 10px; }
table { border-collapse: collapse; }
td, th { border: 1px solid #ddd; padding: 6px; }
th { padding-top: 10px; padding-bottom: 10px; text-align: left; background-color: #4caf50; color: white; }
tfoot td { padding-top: 10px; padding-bottom: 10px; }
tr:nth-child(even) { background-color: #f2f2f2; }
p { margin-top: 20px; }
</style>
</head>
<body>
<p>Los siguientes datos corresponden a la fecha: <strong>{{.DateLabel}}</strong>.</p>
<table>
<tr><th>Banco</th><th>Venta</th><th>Compra</th><th>Tipo de Cambio Oficial</th></tr>
{{- range .Rows}}
<tr>
<td><img src="{{.Logo}}" alt="{{.Code}}" width="40" height="40"></td>
<td>{{if .BestSell}}<strong>{{.Sell}}</strong>{{else}}{{.Sell}}{{end}}{{if .TrendImage}}&nbsp;&nbsp;&nbsp;<img src="{{.TrendImage}}" alt="{{.Trend}}" width="15" height="15">{{end}}</td>
<td>{{if .BestBuy}}<strong>{{.Buy}}</strong>{{else}}{{.Buy}}{{end}}</td>
<td>{{$.Reference}}</td>
</tr>
{{- end}}
<tfoot>
<tr><td colspan="4"><strong>Nota:</strong> Las mejores opciones de compra/venta están marcadas con <strong>negrita</strong></td></tr>
</tfoot>
</table>
<p>Si ya no desea seguir recibiendo este correo, recuerde que puede darse de <strong>baja</strong> en cualquier momento con el siguiente enlace: <a href="{{.Link}}">Presione aquí</a>.</p>
</body>
</html>`

// HTML рендерит письма через html/template и добавляет текстовую версию.
type HTML struct {
	assetsBase string
	activation *template.Template
	daily      *template.Template
}

// New создаёт рендерер. assetsBase — URL каталога с логотипами и значками тренда.
func New(assetsBase string) *HTML {
	if assetsBase != "" && !strings.HasSuffix(assetsBase, "/") {
		assetsBase += "/"
	}
	return &HTML{
		assetsBase: assetsBase,
		activation: template.Must(template.New("activation").Parse(activationTemplate)),
		daily:      template.Must(template.New("daily").Parse(dailyTemplate)),
	}
}

type rowView struct {
	Code       string
	Logo       string
	Sell       string
	Buy        string
	BestSell   bool
	BestBuy    bool
	Trend      string
	TrendImage string
}

// RenderActivationMessage рендерит письмо со ссылкой активации.
func (h *HTML) RenderActivationMessage(fullName, activationLink string) (domain.Document, error) {
	var buf bytes.Buffer
	data := struct {
		FullName string
		Link     template.URL
	}{FullName: fullName, Link: template.URL(activationLink)}
	if err := h.activation.Execute(&buf, data); err != nil {
		return domain.Document{}, fmt.Errorf("render activation: %w", err)
	}
	return h.document(buf.String())
}

// RenderDailyMessage рендерит ежедневную сравнительную таблицу.
func (h *HTML) RenderDailyMessage(dateLabel string, comparison domain.Comparison, deactivationLink string) (domain.Document, error) {
	rows := make([]rowView, 0, len(comparison.Rows))
	for _, row := range comparison.Rows {
		view := rowView{
			Code:     row.Source.Code,
			Logo:     h.assetsBase + row.Source.Code + ".png",
			Sell:     row.Sell.String(),
			Buy:      row.Buy.String(),
			BestSell: row.BestSell,
			BestBuy:  row.BestBuy,
			Trend:    string(row.Trend),
		}
		if row.Trend != domain.TrendUnknown {
			view.TrendImage = h.assetsBase + string(row.Trend) + ".png"
		}
		rows = append(rows, view)
	}

	var buf bytes.Buffer
	data := struct {
		DateLabel string
		Rows      []rowView
		Reference string
		Link      template.URL
	}{
		DateLabel: dateLabel,
		Rows:      rows,
		Reference: comparison.Reference.String(),
		Link:      template.URL(deactivationLink),
	}
	if err := h.daily.Execute(&buf, data); err != nil {
		return domain.Document{}, fmt.Errorf("render daily: %w", err)
	}
	return h.document(buf.String())
}

func (h *HTML) document(body string) (domain.Document, error) {
	text, err := html2text.FromString(body, html2text.Options{})
	if err != nil {
		return domain.Document{}, fmt.Errorf("render text part: %w", err)
	}
	return domain.Document{HTML: body, Text: text}, nil
}
