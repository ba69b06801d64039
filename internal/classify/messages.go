package classify

import (
	"fmt"
	"math"
	"strings"
)

// ExamplePrompt is attached to validation and fatal errors so users can see a
// prompt that is known to work.
const ExamplePrompt = "Ilustração minimalista 1080x1080 de uma banana geométrica centralizada, fundo azul-claro #A3D9FF, sombras suaves, sem pessoas, estilo clean de identidade visual."

const (
	SafetyMessage        = "Bloqueado por segurança"
	defaultSafetyDetails = "Conteúdo bloqueado por segurança."
	quotaMessage         = "Quota excedida"
	noImageFormat        = "O modelo %s não retornou imagem. Exemplo de prompt funcional: %s"
)

const modelAccessHelp = "Sua chave da Google AI não tem acesso ao modelo solicitado. Acesse o Google AI Studio, habilite o Image Generation para o projeto da chave ou gere uma nova chave com esse acesso."

// QuotaMessage renders the user-facing quota message with the wait time when
// one is known.
func QuotaMessage(retryAfterSeconds *float64) string {
	if retryAfterSeconds == nil || *retryAfterSeconds <= 0 {
		return quotaMessage + ". Tente novamente mais tarde."
	}
	wait := int(math.Ceil(*retryAfterSeconds))
	unit := "segundos"
	if wait == 1 {
		unit = "segundo"
	}
	return fmt.Sprintf("%s. Tente novamente em %d %s.", quotaMessage, wait, unit)
}

// ModelAvailabilityHelp explains how to enable model access when the provider
// message indicates the key cannot reach the requested model. It returns ""
// when the message does not look like an availability problem.
func ModelAvailabilityHelp(message string) string {
	msg := strings.ToLower(strings.TrimSpace(message))
	if msg == "" {
		return ""
	}
	switch {
	case strings.Contains(msg, "gemini-2.5") || strings.Contains(msg, "flash-image"):
		return modelAccessHelp + ` Garanta que o modelo "gemini-2.5-flash-image" esteja habilitado no projeto da chave.`
	case strings.Contains(msg, "imagen-4.0"):
		return modelAccessHelp + ` Garanta que os modelos "imagen-4.0-generate-001" e "imagen-4.0-ultra-generate-001" estejam disponíveis para uso.`
	case strings.Contains(msg, "imagen-3.0"):
		return modelAccessHelp + ` Garanta que o modelo "imagen-3.0-generate-001" esteja disponível para uso.`
	case strings.Contains(msg, "imagegeneration"):
		return modelAccessHelp + ` Habilite o modelo legacy "imagegeneration@002" como alternativa.`
	case strings.Contains(msg, "not found") || strings.Contains(msg, "unsupported") || strings.Contains(msg, "does not exist"):
		return modelAccessHelp
	default:
		return ""
	}
}
