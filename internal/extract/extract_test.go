package extract_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/sashabaranov/go-openai"

	"pita/internal/document"
	"pita/internal/extract"
)

const cartaText = `SOLICITUD DE COTIZACIÓN PÓLIZA DE TÍTULO
Nombre del Solicitante: Juan Pérez Rivera
Nombre del Co-Solicitante: María López
Dirección Postal: Calle Luna 123
San Juan PR 00901
Número de Seguro Social del Solicitante: 123-45-6789
Correo Electrónico: JUAN.PEREZ @ Example.com |
Cantidad de la Hipoteca: $185,000.00
Precio de Venta: 200000
Tipo de Préstamo: Convencional   30 años
Fecha estimada de cierre: 15/11/2025`

func TestRuleExtractorCarta(t *testing.T) {
	fields, err := extract.NewRuleExtractor().Extract(context.Background(), document.CartaSolicitud, cartaText)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}

	want := map[string]string{
		"nombre_solicitante":    "Juan Pérez Rivera",
		"direccion_postal":      "Calle Luna 123 San Juan PR 00901",
		"ssn":                   "123-45-6789",
		"email":                 "juan.perez@example.com",
		"cantidad_hipoteca":     "$185,000.00",
		"precio_venta":          "$200,000.00",
		"tipo_prestamo":         "Convencional 30 años",
		"fecha_estimada_cierre": "15/11/2025",
	}
	for k, v := range want {
		if fields[k] != v {
			t.Errorf("%s = %q, want %q", k, fields[k], v)
		}
	}
}

func TestRuleExtractorOmitsMissingFields(t *testing.T) {
	text := "SOLICITUD DE COTIZACION\nPrecio de Venta: 900\n"
	fields, err := extract.NewRuleExtractor().Extract(context.Background(), document.CartaSolicitud, text)

	var partial *extract.PartialError
	if !errors.As(err, &partial) || !errors.Is(err, extract.ErrExtractionPartial) {
		t.Fatalf("err = %v, want PartialError", err)
	}
	if fmt.Sprint(partial.Missing) != "[nombre_solicitante]" {
		t.Errorf("missing = %v", partial.Missing)
	}
	if _, ok := fields["precio_venta"]; ok {
		t.Errorf("precio_venta under 1000 should be dropped, got %q", fields["precio_venta"])
	}
	for k, v := range fields {
		if v == "" {
			t.Errorf("field %s stored empty", k)
		}
	}
}

func TestRuleExtractorEstudio(t *testing.T) {
	text := `CAPITAL TITLE SERVICES
ESTUDIO DE TÍTULO
FINCA: 12,345,
Solar radicado en la Urbanización Villa Real.
Certificado al 3 de marzo de 2025
Continuación
POR: Capital Title, 10 de octubre de 2025`

	fields, err := extract.NewRuleExtractor().Extract(context.Background(), document.EstudioTitulo, text)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if fields["finca"] != "12,345" {
		t.Errorf("finca = %q", fields["finca"])
	}
	if fields["tipo_propiedad"] != extract.PropertyHouse {
		t.Errorf("tipo_propiedad = %q", fields["tipo_propiedad"])
	}
	if fields["fecha_documento"] != "10 de octubre de 2025" {
		t.Errorf("fecha_documento = %q", fields["fecha_documento"])
	}
}

func TestRuleExtractorAutorizacion(t *testing.T) {
	text := `AUTORIZACIÓN PARA REFERIR LOS SEGUROS
Nombre del Solicitante: Juan Perez Rivera
Número de Solicitud: 1234567890
Favor indicar el seguro que no desea que Popular Insurance gestione: ____________
Firma del Solicitante`

	fields, err := extract.NewRuleExtractor().Extract(context.Background(), document.AutorizacionSeguros, text)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if fields["num_solicitud"] != "1234567890" {
		t.Errorf("num_solicitud = %q", fields["num_solicitud"])
	}
	if fields["linea_rechazo"] != extract.RejectionBlank {
		t.Errorf("linea_rechazo = %q", fields["linea_rechazo"])
	}
}

func TestRejectionLine(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		want  string
		found bool
	}{
		{"blank", "que no desea que Popular Insurance gestione: ______", extract.RejectionBlank, true},
		{"form words", "que no desea que Popular Insurance gestione: Firma del Solicitante", extract.RejectionBlank, true},
		{"written", "que no desea que Popular Insurance gestione: Seguro de vida", "ALERTA: Contiene texto ('Seguro de vida')", true},
		{"absent", "nada relevante", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := extract.RejectionLine(tt.text)
			if got != tt.want || ok != tt.found {
				t.Errorf("RejectionLine = %q, %v; want %q, %v", got, ok, tt.want, tt.found)
			}
		})
	}
}

func TestDivulgacionesNumberOrder(t *testing.T) {
	text := "Número de préstamo: 1111111111\nNúmero de solicitud: 2222222222"
	ext := extract.NewRuleExtractor()

	prod, _ := ext.Extract(context.Background(), document.DivulgacionesProductos, text)
	tit, _ := ext.Extract(context.Background(), document.DivulgacionesTitulo, text)
	if prod["num_solicitud"] != "1111111111" {
		t.Errorf("productos num_solicitud = %q", prod["num_solicitud"])
	}
	if tit["num_solicitud"] != "2222222222" {
		t.Errorf("titulo num_solicitud = %q", tit["num_solicitud"])
	}
}

func TestRuleExtractorUnknownType(t *testing.T) {
	_, err := extract.NewRuleExtractor().Extract(context.Background(), document.Unknown, "x")
	if !errors.Is(err, extract.ErrUnknownType) {
		t.Fatalf("err = %v", err)
	}
}

type fakeChat struct {
	content string
	calls   int
	err     error
	last    openai.ChatCompletionRequest
}

func (f *fakeChat) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.calls++
	f.last = req
	if f.err != nil {
		return openai.ChatCompletionResponse{}, f.err
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: f.content}}},
	}, nil
}

func TestCompletionExtractorFillsMissing(t *testing.T) {
	chat := &fakeChat{content: `{"nombre_solicitante": "Juan Perez", "num_solicitud": "12345"}`}
	ext := extract.NewCompletionExtractorWithClient(extract.NewRuleExtractor(), chat, extract.CompletionConfig{})

	fields, err := ext.Extract(context.Background(), document.AutorizacionSeguros, "AUTORIZACION PARA REFERIR")
	if fields["nombre_solicitante"] != "Juan Perez" {
		t.Errorf("nombre_solicitante = %q", fields["nombre_solicitante"])
	}
	if _, ok := fields["num_solicitud"]; ok {
		t.Errorf("malformed num_solicitud accepted: %q", fields["num_solicitud"])
	}
	var partial *extract.PartialError
	if !errors.As(err, &partial) || fmt.Sprint(partial.Missing) != "[num_solicitud]" {
		t.Errorf("err = %v", err)
	}
	if chat.calls != 1 {
		t.Errorf("calls = %d", chat.calls)
	}
}

func TestCompletionExtractorSkipsCompleteDocuments(t *testing.T) {
	chat := &fakeChat{}
	ext := extract.NewCompletionExtractorWithClient(extract.NewRuleExtractor(), chat, extract.CompletionConfig{})

	if _, err := ext.Extract(context.Background(), document.DivulgacionesTitulo, "Número de Solicitud: 1234567890"); err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if chat.calls != 0 {
		t.Errorf("completion called %d times for a complete document", chat.calls)
	}
}

func TestCompletionExtractorFailureKeepsRuleResult(t *testing.T) {
	chat := &fakeChat{err: errors.New("boom")}
	ext := extract.NewCompletionExtractorWithClient(extract.NewRuleExtractor(), chat, extract.CompletionConfig{MaxRetries: 2})

	_, err := ext.Extract(context.Background(), document.DivulgacionesTitulo, "sin numero")
	if !errors.Is(err, extract.ErrExtractionPartial) {
		t.Fatalf("err = %v", err)
	}
	if chat.calls != 2 {
		t.Errorf("calls = %d, want 2", chat.calls)
	}
}

func TestCompletionExtractorCutsTextOnCharacters(t *testing.T) {
	chat := &fakeChat{content: `{}`}
	ext := extract.NewCompletionExtractorWithClient(extract.NewRuleExtractor(), chat, extract.CompletionConfig{MaxTextLen: 5})

	ext.Extract(context.Background(), document.DivulgacionesTitulo, "ñañañañaña sin número")
	if chat.calls != 1 {
		t.Fatalf("calls = %d", chat.calls)
	}
	prompt := chat.last.Messages[len(chat.last.Messages)-1].Content
	if !utf8.ValidString(prompt) {
		t.Fatalf("prompt is not valid UTF-8: %q", prompt)
	}
	if !strings.HasSuffix(prompt, "\nñañañ") {
		t.Errorf("prompt ends with %q, want the first five characters", prompt[strings.LastIndex(prompt, "\n")+1:])
	}
}

func TestRuleExtractorPadsDates(t *testing.T) {
	fields, _ := extract.NewRuleExtractor().Extract(context.Background(), document.CartaSolicitud,
		"Nombre del Solicitante: Ana Ruiz\nFecha estimada de cierre: 5/3/2025")
	if fields["fecha_estimada_cierre"] != "05/03/2025" {
		t.Errorf("fecha_estimada_cierre = %q", fields["fecha_estimada_cierre"])
	}

	fields, _ = extract.NewRuleExtractor().Extract(context.Background(), document.EstudioTitulo,
		"ESTUDIO DE TITULO\nFinca número 1,234\nCertificado el 1/2/2025 y revisado el 7/10/2025")
	if fields["fecha_documento"] != "07/10/2025" {
		t.Errorf("fecha_documento = %q", fields["fecha_documento"])
	}
}

func ExampleDate() {
	for _, raw := range []string{"1/2/2025", "31/12/2025", "32/1/2025", "1/13/2025"} {
		v, ok := extract.Date(raw)
		fmt.Printf("%q %v\n", v, ok)
	}
	// Output:
	// "01/02/2025" true
	// "31/12/2025" true
	// "" false
	// "" false
}

func ExampleCurrency() {
	v, ok := extract.Currency("1234567.5")
	fmt.Println(v, ok)
	_, ok = extract.Currency("999")
	fmt.Println(ok)
	// Output:
	// $1,234,567.50 true
	// false
}
