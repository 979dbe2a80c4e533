package assistant

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
)

// Static is a deterministic rule-based Assistant used when no model API key
// is configured, and in tests. Classification is keyword-driven; replies are
// templated in the session language (Spanish default).
type Static struct {
	threshold float64
}

// NewStatic constructs a Static assistant. Replies whose confidence falls
// below threshold are flagged as fallbacks.
func NewStatic(threshold float64) *Static {
	if threshold <= 0 {
		threshold = 0.55
	}
	return &Static{threshold: threshold}
}

var intentKeywords = map[string][]string{
	IntentGreeting:  {"hola", "buenas", "buenos dias", "hello", "hi ", "hey"},
	IntentFarewell:  {"adios", "gracias", "hasta luego", "bye", "thank"},
	IntentHandoff:   {"agente", "humano", "persona real", "representante", "vendedor", "agent", "human"},
	IntentTestDrive: {"prueba de manejo", "test drive", "probarlo"},
	IntentPricing:   {"precio", "cuanto cuesta", "financiamiento", "cuota", "price", "financing"},
}

var searchKeywords = []string{"busco", "quiero", "me interesa", "disponible", "looking for", "interested in", "inventario"}

// Classify labels a message with an intent. Exported so the pipeline can
// reuse the same taxonomy when scoring quick-response turns.
func Classify(text string) string {
	t := fold(text)
	if f, ok := ParseSearchQuery(t); ok && (f.Make != "" || f.Model != "") {
		return IntentVehicleSearch
	}
	for _, intent := range []string{IntentHandoff, IntentTestDrive, IntentPricing, IntentGreeting, IntentFarewell} {
		for _, kw := range intentKeywords[intent] {
			if strings.Contains(t, kw) {
				return intent
			}
		}
	}
	for _, kw := range searchKeywords {
		if strings.Contains(t, kw) {
			return IntentVehicleSearch
		}
	}
	return IntentOther
}

// Reply implements Assistant.
func (s *Static) Reply(_ context.Context, req Request) (Reply, error) {
	intent := Classify(req.Message)
	english := strings.HasPrefix(strings.ToLower(req.Language), "en")
	name := req.BotName
	if name == "" {
		name = "Asistente"
	}

	var text string
	confidence := 0.8
	switch intent {
	case IntentGreeting:
		if english {
			text = fmt.Sprintf("Hello! I'm %s. How can I help you find your next vehicle?", name)
		} else {
			text = fmt.Sprintf("¡Hola! Soy %s. ¿En qué puedo ayudarte a encontrar tu próximo vehículo?", name)
		}
		confidence = 0.95
	case IntentFarewell:
		if english {
			text = "Thanks for reaching out! We're here whenever you need us."
		} else {
			text = "¡Gracias por escribirnos! Aquí estamos cuando nos necesites."
		}
		confidence = 0.95
	case IntentHandoff:
		if english {
			text = "Of course, let me connect you with one of our advisors."
		} else {
			text = "Claro, te comunico con uno de nuestros asesores."
		}
		confidence = 0.9
	case IntentVehicleSearch, IntentPricing, IntentTestDrive:
		if len(req.Vehicles) > 0 {
			text = renderVehicles(req.Vehicles, english)
			confidence = 0.9
		} else {
			if english {
				text = "I couldn't find a match for that in our current inventory. Could you share the make, model or budget you have in mind?"
			} else {
				text = "No encontré algo así en nuestro inventario actual. ¿Me compartes la marca, el modelo o el presupuesto que tienes en mente?"
			}
			confidence = 0.6
		}
	default:
		if english {
			text = "I'm not sure I understood. Could you rephrase that, or would you like to talk to an advisor?"
		} else {
			text = "No estoy seguro de haber entendido. ¿Puedes reformularlo, o prefieres hablar con un asesor?"
		}
		confidence = 0.3
	}

	return Reply{
		Text:       text,
		Intent:     intent,
		Confidence: confidence,
		IsFallback: confidence < s.threshold,
	}, nil
}

func renderVehicles(vehicles []Vehicle, english bool) string {
	var b strings.Builder
	if english {
		b.WriteString("These options match what you're looking for:\n")
	} else {
		b.WriteString("Estas opciones coinciden con lo que buscas:\n")
	}
	for i, v := range vehicles {
		if i >= 3 {
			break
		}
		fmt.Fprintf(&b, "• %s — $%.0f\n", v.Summary, v.Price)
	}
	if english {
		b.WriteString("Would you like more details or to schedule a test drive?")
	} else {
		b.WriteString("¿Quieres más detalles o agendar una prueba de manejo?")
	}
	return b.String()
}

// StaticEmbedder hashes word tokens into a fixed-dimension vector. The output
// is deterministic: equal texts embed equally, which is all the keyless mode
// and the tests require of it.
type StaticEmbedder struct {
	dim int
}

// NewStaticEmbedder constructs an embedder with the given dimension.
func NewStaticEmbedder(dim int) *StaticEmbedder {
	if dim <= 0 {
		dim = 64
	}
	return &StaticEmbedder{dim: dim}
}

// Embed implements Embedder.
func (e *StaticEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	v := make([]float32, e.dim)
	for _, tok := range strings.Fields(fold(text)) {
		h := fnv.New32a()
		h.Write([]byte(tok))
		sum := h.Sum32()
		v[sum%uint32(e.dim)] += 1
		v[(sum>>8)%uint32(e.dim)] += 0.5
	}
	var norm float64
	for _, f := range v {
		norm += float64(f) * float64(f)
	}
	if norm > 0 {
		inv := 1 / math.Sqrt(norm)
		for i := range v {
			v[i] = float32(float64(v[i]) * inv)
		}
	}
	return v, nil
}
