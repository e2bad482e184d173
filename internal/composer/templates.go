package composer

import "github.com/socialforge/outreach/internal/scoring"

// defaultSet is the built-in template set for the launch market, used when
// a campaign names no set or the named set is missing. Templates mix
// Liquid variables (rendered first) with spintax groups (expanded after),
// one paragraph each for greeting, hook, and closing.
var defaultSet = &TemplateSet{
	Name: "default",
	ByTier: map[string][]string{
		scoring.TemplateUltraPersonalized: {
			"{{ first_name }}, vi que você trabalha com {{ profession }}.\n\n{{ bio_hook }}\n\n{Posso te fazer uma pergunta|Queria te perguntar uma coisa}?",
			"{{ first_name }}, {curti|gostei do} seu perfil.\n\n{{ bio_hook }}\n\n{Teria 2 min pra trocar uma ideia|Faz sentido a gente conversar}?",
			"{Oi|Olá} {{ first_name }}\n\n{{ bio_hook }}\n\nAcho que faz sentido a gente conversar. Posso te explicar o porquê?",
			"{{ first_name }}, passei pelo seu perfil.\n\n{{ bio_hook }}\n\nMe conta uma coisa: como {tá|está} a captação de clientes {hoje|atualmente}?",
		},
		scoring.TemplatePersonalized: {
			"{{ first_name }}, vi seu perfil.\n\n{{ bio_hook }}\n\n{Posso te fazer uma pergunta rápida|Tenho uma pergunta rápida}?",
			"{Oi|Olá} {{ first_name }}\n\n{{ bio_hook }}\n\n{Faz sentido|Faria sentido} trocar uma ideia sobre isso?",
			"{{ first_name }}, curti o que você faz.\n\n{{ bio_hook }}\n\n{Posso te mandar|Te mando} um áudio de 1 min explicando algo?",
			"{{ first_name }}\n\n{{ bio_hook }}\n\nTeria interesse em saber como alguns {{ profession }}s estão resolvendo isso?",
		},
		scoring.TemplateStandard: {
			"{{ first_name }}, {tudo bem|beleza}?\n\nVi seu perfil e achei interessante.\n\n{Posso te fazer uma pergunta|Queria te perguntar uma coisa}?",
			"{Oi|Olá} {{ first_name }}\n\nPassei pelo seu perfil.\n\n{Faz sentido|Faria sentido} trocar uma ideia rápida?",
			"{{ first_name }}\n\nCurti seu trabalho.\n\n{Posso te contar|Te conto} algo que {pode te interessar|talvez te interesse}?",
			"{{ first_name }}, {tudo certo|beleza}?\n\nVi que você é {{ profession }}.\n\nMe conta: como {tá|está} a demanda de clientes hoje?",
		},
	},
}

// specialtyHooks matches concrete specialties mentioned in the bio. Order
// is fixed: the first hit wins, so results are deterministic for a bio.
var specialtyHooks = []struct{ keyword, hook string }{
	{"longevidade", "Vi seu foco em longevidade."},
	{"emagrecimento", "Notei seu trabalho com emagrecimento."},
	{"harmonização", "Curti seu trabalho com harmonização."},
	{"estética", "Vi seus resultados com estética."},
	{"implante", "Vi que você trabalha com implantes."},
	{"ortodontia", "Notei seu trabalho com ortodontia."},
	{"crossfit", "Notei que você é de crossfit."},
	{"pilates", "Vi seu trabalho com pilates."},
	{"yoga", "Notei seu trabalho com yoga."},
	{"coaching", "Vi que você faz coaching."},
	{"mentoria", "Notei que você faz mentoria."},
	{"consultoria", "Vi que você faz consultoria."},
	{"dermatologia", "Notei sua especialidade em dermato."},
	{"nutrologia", "Notei seu trabalho com nutrologia."},
	{"clínica", "Notei sua clínica."},
	{"consultório", "Vi que você tem consultório próprio."},
}

// professionHooks holds hook variants per detected profession; one is
// picked at random per message.
var professionHooks = map[string][]string{
	"médico":        {"Notei que você atende particular.", "Vi que você é da área de saúde.", "Sei como é corrida a rotina de consultório."},
	"dentista":      {"Vi que você trabalha com estética dental.", "Notei seu trabalho com harmonização.", "Curti os resultados que você posta."},
	"advogado":      {"Vi que você atua na área jurídica.", "Notei sua especialidade.", "Interessante seu posicionamento aqui."},
	"empresário":    {"Vi que você empreende.", "Notei seu negócio.", "Curti a proposta da sua empresa."},
	"coach":         {"Vi seu trabalho com desenvolvimento pessoal.", "Notei sua metodologia.", "Curti sua abordagem."},
	"consultor":     {"Vi que você faz consultoria.", "Notei sua área de atuação.", "Interessante seu nicho."},
	"nutricionista": {"Vi seu trabalho com nutrição.", "Notei sua especialidade.", "Curti seu conteúdo sobre alimentação."},
	"psicólogo":     {"Vi seu trabalho com saúde mental.", "Notei sua abordagem terapêutica.", "Curti seu conteúdo."},
	"marketing":     {"Vi que você é da área de marketing.", "Notei seu trabalho com growth.", "Curti suas estratégias."},
}

// interestHooks maps rubric interest categories to a hook line.
var interestHooks = map[string]string{
	"marketing":  "Notei que você manja de marketing.",
	"tecnologia": "Vi que você curte tecnologia.",
	"negocios":   "Notei seu foco em negócios.",
	"estetica":   "Vi que você é da área de estética.",
	"saude":      "Notei que você é da área de saúde.",
	"financas":   "Vi que você trabalha com finanças.",
	"educacao":   "Notei seu trabalho com educação.",
}
