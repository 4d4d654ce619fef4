package services

import (
	"fmt"
	"strings"
)

const rentalSentinel = "ERROR"

// extractionPrompt is the fixed contract with the model: the schema keys
// match the JSON tags of models.ExtractedListing.
const extractionPrompt = `Ты - помощник, который анализирует объявления о недвижимости и извлекает из них конкретные данные.
Тебе предоставляется текст объявления, и ты должен вернуть JSON-объект с заполненными полями.
Если ты не можешь определить какое-то значение, ставь null.
Если объявление не о продаже, а об аренде (например, содержит слова "сдается", "в аренду" и т.п.), верни только строку "%[1]s", без дополнительного текста.

Поля:
- "этажность_дома": string | null
- "этаж": string | null
- "тип_строения": string | null
- "ремонт": string | null
- "планировка": string | null
- "количество_комнат": string | null
- "год_постройки": string | null
- "ссылка": string (уже заполнена)
- "местоположение": string | null
- "дата_публикации": string | null
- "площадь": number | null

Текст объявления:
%[2]s

Ссылка: %[3]s

Верни только JSON-объект или строку "%[1]s", без дополнительного текста.`

// BuildPrompt renders the extraction prompt for one listing.
func BuildPrompt(text, link string) string {
	return fmt.Sprintf(extractionPrompt, rentalSentinel, strings.TrimSpace(text), link)
}

// ListingText assembles the text block handed to the model.
func ListingText(title, description string, parameters []string, location string) string {
	return fmt.Sprintf("Название: %s\nОписание: %s\nПараметры: %s\nМестоположение: %s",
		title, description, strings.Join(parameters, ", "), location)
}
