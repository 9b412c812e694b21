package enrich

const replyRules = `Responda somente com um objeto JSON, sem texto antes ou depois.
O campo "confianca" é um número entre 0 e 1.`

const answerExtractionPrompt = `Você recebe uma questão de concurso com enunciado, alternativas e o comentário do professor.
Identifique o gabarito indicado no comentário. Não resolva a questão por conta própria:
se o comentário não indicar o gabarito, use confianca baixa.
Formato: {"gabarito": "<letra da alternativa>", "confianca": <número>}.
` + replyRules

const subjectClassificationPrompt = `Você recebe uma questão de concurso. Classifique a matéria (disciplina) a que ela pertence,
usando o nome usual da disciplina em editais, por exemplo "Direito Constitucional" ou "Língua Portuguesa".
Formato: {"materia": "<nome da matéria>", "confianca": <número>}.
` + replyRules

const statementFormattingPrompt = `Você recebe o enunciado de uma questão de concurso extraído de uma página web.
Reescreva-o em HTML simples (p, br, strong, em, ul, ol, li, table, img), corrigindo apenas
quebras de linha, espaçamento e marcação. Não altere, resuma nem acrescente conteúdo.
Formato: {"texto_formatado": "<html>", "confianca": <número>}.
` + replyRules

const commentaryFormattingPrompt = `Você recebe o comentário do professor sobre uma questão de concurso.
Reescreva-o em HTML simples (p, br, strong, em, ul, ol, li, table, img), corrigindo apenas
quebras de linha, espaçamento e marcação. Não altere, resuma nem acrescente conteúdo.
Formato: {"texto_formatado": "<html>", "confianca": <número>}.
` + replyRules

const fullReviewPrompt = `Você revisa uma questão de concurso já cadastrada: enunciado, alternativas, gabarito,
comentário e matéria. Verifique se o gabarito é coerente com o comentário e se o texto está íntegro.
Liste cada problema encontrado em "problemas". Se o gabarito parecer errado, indique o correto em "gabarito_sugerido".
Formato: {"aprovado": <true|false>, "gabarito_sugerido": "<letra ou vazio>", "problemas": ["..."], "confianca": <número>}.
` + replyRules
