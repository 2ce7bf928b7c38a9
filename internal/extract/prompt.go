package extract

import "fmt"

// systemPrompt instructs the model to return a bare JSON array of codes.
const systemPrompt = `Du er en ekspert på å finne og validere rabattkoder for norske nettbutikker.

Analyser innholdet og ekstraher gyldige rabattkoder. For hver kode, vurder:
- Om koden ser aktiv og gyldig ut
- Sannsynlighet for at den fungerer (0-100)
- Eventuelle betingelser (ny kunde, student, minimum beløp, etc.)

Returner BARE et JSON-array med objekter. Ikke inkluder noe annet tekst.
Hver objekt skal ha: code, description, probability, context (array), savings.

Eksempel output:
[{"code":"VELKOMST10","description":"10% rabatt på første ordre","probability":85,"context":["Ny kunde"],"savings":"10%"}]

VIKTIG:
- Returner kun koder som ser gyldige ut
- Sett probability basert på hvor pålitelig kilden virker
- Ignorer utløpte koder eller generiske tilbud uten kode
- Hvis ingen gyldige koder finnes, returner []`

func userPrompt(storeName, text string) string {
	return fmt.Sprintf("Finn alle gyldige rabattkoder for %s fra dette innholdet:\n\n%s", storeName, text)
}

// truncateRunes cuts s to at most n runes without splitting a character.
func truncateRunes(s string, n int) string {
	if n <= 0 {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
