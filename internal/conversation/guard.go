package conversation

import (
	"regexp"
	"strings"
)

// InboundScan is the prompt-injection verdict for one contact message.
type InboundScan struct {
	Blocked   bool
	// Score is a heuristic in [0, 1]; the highest matching weight plus 0.1
	// for every further signal.
	Score     float64
	Reasons   []string
	Sanitized string
}

// OutboundScan is the leak verdict for one model reply.
type OutboundScan struct {
	Leaked    bool
	Reasons   []string
	Sanitized string
}

type guardPattern struct {
	re     *regexp.Regexp
	reason string
	weight float64
}

const guardBlockThreshold = 0.7

// GuardedReply answers a blocked message without involving the model.
const GuardedReply = "Posso te ajudar com informações sobre nossos empreendimentos, visitas e atendimento com um corretor. Como posso ajudar?"

var inboundPatterns = []guardPattern{
	{regexp.MustCompile(`(?i)ignore\s+(all\s+)?(previous|prior|above|your)\s+(instructions?|rules?|prompts?)`), "injection:ignore_instructions", 0.9},
	{regexp.MustCompile(`(?i)(ignore|esqueça|esqueca|desconsidere)\s+(todas\s+)?(as\s+)?(suas\s+)?(instruções|instrucoes|regras|orientações|orientacoes)(\s+anteriores)?`), "injection:ignore_instructions", 0.9},
	{regexp.MustCompile(`(?i)(you\s+are\s+now|a\s+partir\s+de\s+agora\s+você\s+é|agora\s+você\s+é)\s+(a|an|um|uma|my|meu|minha)\s+`), "injection:role_reassignment", 0.7},
	{regexp.MustCompile(`(?i)new\s+instructions?\s*:|novas\s+instruções\s*:|system\s*prompt\s*:|<<\s*sys(tem)?\s*>>`), "injection:new_role", 0.9},
	{regexp.MustCompile(`(?i)jailbreak|DAN\s*mode|developer\s*mode|modo\s+desenvolvedor|god\s*mode`), "injection:jailbreak_keyword", 0.9},
	{regexp.MustCompile(`(?i)(reveal|show|print|repeat|mostre|revele|repita|qual\s+é)\s+(o\s+)?(seu\s+|your\s+)?(system\s+prompt|prompt\s+do\s+sistema|instructions|instruções|instrucoes)`), "exfiltration:system_prompt", 0.8},
	{regexp.MustCompile(`(?i)(liste|list|mostre|show|passe)\s+(os\s+)?(dados|telefones|contatos|nomes|leads)\s+(de\s+)?(outros|other)\s+(clientes|customers|leads)`), "exfiltration:other_contacts", 0.8},
	{regexp.MustCompile(`(?i)\b(api|secret|aws|database|banco\s+de\s+dados)\s*(key|token|secret|password|senha|chave)s?\b`), "exfiltration:credentials", 0.8},
	{regexp.MustCompile(`(?i)\[/?INST\]|\[/?SYS\]|<\|im_start\|>|<\|im_end\|>|<\|system\|>|<\|user\|>|<\|assistant\|>`), "context:special_tokens", 0.9},
	{regexp.MustCompile(`(?i)###\s*(system|sistema|instruction|instrução|assistant|user)\s*:`), "context:role_markers", 0.7},
	{regexp.MustCompile(`<\s*(script|iframe|object|embed|svg|form)\b`), "obfuscation:html_injection", 0.6},
	{regexp.MustCompile(`(?i)base64\s*(encode|decode|:)`), "obfuscation:encoding", 0.5},
}

var (
	specialTokenRe = regexp.MustCompile(`(?i)\[/?INST\]|\[/?SYS\]|<\|im_start\|>|<\|im_end\|>|<\|system\|>|<\|user\|>|<\|assistant\|>`)
	roleMarkerRe   = regexp.MustCompile(`(?i)###\s*(system|sistema|instruction|instrução|assistant|user)\s*:`)
	htmlTagRe      = regexp.MustCompile(`<\s*(script|iframe|object|embed|svg|form)\b[^>]*>`)
)

// ScanInbound scores a contact message for prompt injection. Messages at or
// above the block threshold never reach the model.
func ScanInbound(message string) InboundScan {
	if strings.TrimSpace(message) == "" {
		return InboundScan{Sanitized: message}
	}

	var (
		reasons []string
		top     float64
	)
	for _, p := range inboundPatterns {
		if p.re.MatchString(message) {
			reasons = append(reasons, p.reason)
			if p.weight > top {
				top = p.weight
			}
		}
	}
	score := top
	if len(reasons) > 1 {
		score = top + float64(len(reasons)-1)*0.1
		if score > 1 {
			score = 1
		}
	}

	cleaned := specialTokenRe.ReplaceAllString(message, "")
	cleaned = roleMarkerRe.ReplaceAllString(cleaned, "")
	cleaned = htmlTagRe.ReplaceAllString(cleaned, "")
	return InboundScan{
		Blocked:   score >= guardBlockThreshold,
		Score:     score,
		Reasons:   reasons,
		Sanitized: strings.TrimSpace(cleaned),
	}
}

type leakPattern struct {
	re     *regexp.Regexp
	reason string
	block  bool
}

var leakPatterns = []leakPattern{
	{regexp.MustCompile(`(?i)(meu|minhas?)\s+(prompt|instruções|instrucoes|regras)\s+(é|são|sao|dizem|diz)`), "leak:instructions", true},
	{regexp.MustCompile(`(?i)my\s+(system\s+)?(prompt|instructions?)\s+(is|are|says)`), "leak:instructions", true},
	{regexp.MustCompile(`(?i)(fui|estou)\s+(programad[oa]|instruíd[oa]|instruid[oa]|configurad[oa])\s+para`), "leak:programming", true},
	{regexp.MustCompile(`(?i)search_project_documents|create_follow_up_task|request_human_handoff`), "leak:tool_names", true},
	{regexp.MustCompile(`(?i)(powered\s+by|baseado\s+no|rodando\s+(no|em)|usando\s+o)\s+(Claude|GPT|OpenAI|Anthropic|Bedrock|Gemini)`), "leak:tech_stack", true},
	{regexp.MustCompile(`(?i)(api[_\s]?key|access[_\s]?token|bearer\s+token)\s*[:=]\s*\S+`), "leak:credential", true},
	{regexp.MustCompile(`AKIA[A-Z0-9]{16}`), "leak:aws_key", true},
	{regexp.MustCompile(`(?i)(postgres|postgresql|redis)://\S+`), "leak:database_url", true},
	{regexp.MustCompile(`(?i)/webhooks/|/internal/|/api/conversations`), "leak:internal_path", true},
	{regexp.MustCompile(`(?i)\b(sou|eu\s+sou)\s+(um|uma)\s+(IA|inteligência\s+artificial|inteligencia\s+artificial|modelo\s+de\s+linguagem|LLM)\b`), "leak:ai_identity", false},
}

var aiIdentitySentenceRe = regexp.MustCompile(`(?i)[^.!?]*\b(sou|eu\s+sou)\s+(um|uma)\s+(IA|inteligência\s+artificial|inteligencia\s+artificial|modelo\s+de\s+linguagem|LLM)\b[^.!?]*[.!?]?\s*`)

// ScanOutbound checks a model reply before it is sent. A blocking leak
// empties Sanitized; a soft leak only drops the offending sentence.
func ScanOutbound(reply string) OutboundScan {
	if strings.TrimSpace(reply) == "" {
		return OutboundScan{Sanitized: reply}
	}
	var (
		reasons []string
		block   bool
	)
	for _, p := range leakPatterns {
		if p.re.MatchString(reply) {
			reasons = append(reasons, p.reason)
			block = block || p.block
		}
	}
	if len(reasons) == 0 {
		return OutboundScan{Sanitized: reply}
	}
	out := OutboundScan{Leaked: true, Reasons: reasons}
	if !block {
		out.Sanitized = strings.TrimSpace(aiIdentitySentenceRe.ReplaceAllString(reply, ""))
	}
	return out
}
