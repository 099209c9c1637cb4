// ABOUTME: Deterministic keyword-based fallback responder for agent downtime
// ABOUTME: Ordered rule table evaluated top-to-bottom, first match wins

package responder

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

// Rule maps a set of keywords to a canned reply. A rule matches when any of
// its keywords appears in the lower-cased message.
type Rule struct {
	Name     string   `toml:"name"`
	Keywords []string `toml:"keywords"`
	Reply    string   `toml:"reply"`
}

// Responder produces canned replies from an ordered rule table. Rules are
// evaluated top-to-bottom and the first match wins.
type Responder struct {
	rules        []Rule
	defaultReply string
}

// defaultRules is the built-in intent table. Order matters.
var defaultRules = []Rule{
	{
		Name:     "greeting",
		Keywords: []string{"olá", "oi", "bom dia", "boa tarde", "boa noite"},
		Reply:    "Olá! Bem-vindo ao atendimento Filazero. Como posso ajudá-lo hoje?",
	},
	{
		Name:     "gratitude",
		Keywords: []string{"obrigad", "valeu", "brigado"},
		Reply:    "De nada! Fico feliz em ajudar. Há mais alguma coisa que posso fazer por você?",
	},
	{
		Name:     "problem",
		Keywords: []string{"problema", "erro", "bug", "não funciona"},
		Reply:    "Entendo que você está enfrentando um problema. Pode me fornecer mais detalhes sobre o que está acontecendo? Vou verificar na nossa base de conhecimento e ajudá-lo a resolver.",
	},
	{
		Name:     "pricing",
		Keywords: []string{"preço", "valor", "custo", "plano"},
		Reply:    "Para informações sobre preços e planos, posso conectá-lo com nossa equipe comercial. Que tipo de solução você está procurando?",
	},
	{
		Name:     "howto",
		Keywords: []string{"como usar", "tutorial", "ajuda", "não sei"},
		Reply:    "Claro! Ficarei feliz em orientá-lo. Pode me contar especificamente com o que você precisa de ajuda? Temos documentação e tutoriais disponíveis.",
	},
	{
		Name:     "cancellation",
		Keywords: []string{"cancelar", "cancelamento", "sair"},
		Reply:    "Entendo que você deseja cancelar. Para questões de cancelamento, vou conectá-lo com um atendente especializado que poderá ajudá-lo com esse processo.",
	},
	{
		Name:     "technical",
		Keywords: []string{"técnico", "suporte técnico", "desenvolvedor"},
		Reply:    "Para suporte técnico especializado, vou transferir você para nossa equipe de desenvolvedores. Eles poderão ajudá-lo com questões mais técnicas.",
	},
}

const defaultReply = "Obrigado pela sua mensagem! Estou analisando sua solicitação e em breve fornecerei uma resposta detalhada. Enquanto isso, você pode me dar mais informações sobre o que precisa?"

// New returns a Responder with the built-in rule table
func New() *Responder {
	return &Responder{
		rules:        defaultRules,
		defaultReply: defaultReply,
	}
}

// rulesFile is the TOML layout for a custom rule table. TOML arrays of
// tables preserve declaration order, which the first-match-wins evaluation
// depends on.
type rulesFile struct {
	Default string `toml:"default"`
	Rules   []Rule `toml:"rule"`
}

// Load reads a custom rule table from a TOML file
func Load(path string) (*Responder, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading rules file: %w", err)
	}

	var rf rulesFile
	if err := toml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("parsing rules file: %w", err)
	}

	if len(rf.Rules) == 0 {
		return nil, fmt.Errorf("rules file %s defines no rules", path)
	}
	for i, rule := range rf.Rules {
		if len(rule.Keywords) == 0 {
			return nil, fmt.Errorf("rule %d (%s) has no keywords", i, rule.Name)
		}
		if rule.Reply == "" {
			return nil, fmt.Errorf("rule %d (%s) has no reply", i, rule.Name)
		}
	}

	fallback := rf.Default
	if fallback == "" {
		fallback = defaultReply
	}

	return &Responder{
		rules:        rf.Rules,
		defaultReply: fallback,
	}, nil
}

// Reply returns the canned reply for a message. Matching is case-insensitive
// substring containment over the rule keywords; the first matching rule in
// table order wins, and the default reply covers everything else.
func (r *Responder) Reply(message string) string {
	normalized := strings.ToLower(message)

	for _, rule := range r.rules {
		for _, keyword := range rule.Keywords {
			if strings.Contains(normalized, keyword) {
				return rule.Reply
			}
		}
	}
	return r.defaultReply
}
