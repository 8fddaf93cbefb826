package relay

import "golang.org/x/text/language"

// welcomeByBase maps base language to the one-time greeting sent to a user
// on first contact. English is the fallback for unknown or malformed tags.
var welcomeByBase = map[string]string{
	"en": "Hi! You are now connected to our support team. Send your question here and an agent will reply as soon as possible.",
	"es": "¡Hola! Ya estás en contacto con nuestro equipo de soporte. Escribe tu pregunta aquí y un agente te responderá lo antes posible.",
	"de": "Hallo! Du bist jetzt mit unserem Support-Team verbunden. Schreib deine Frage hier und ein Agent meldet sich so schnell wie möglich.",
	"ru": "Здравствуйте! Вы на связи с нашей службой поддержки. Напишите ваш вопрос здесь, и агент ответит как можно скорее.",
}

// welcomeText picks the greeting for the user's reported locale tag.
func welcomeText(tag string) string {
	if tag != "" {
		if t, err := language.Parse(tag); err == nil {
			if base, conf := t.Base(); conf != language.No {
				if s, ok := welcomeByBase[base.String()]; ok {
					return s
				}
			}
		}
	}
	return welcomeByBase["en"]
}
