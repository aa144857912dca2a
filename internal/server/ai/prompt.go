package ai

const critiquePrompt = `あなたはプロの写真講評家です。添付された写真を分析し、以下の3つの観点から日本語で講評してください。

1. technique（技術面）: 露出、ピント、シャッタースピード、ISO感度などの撮影技術
2. composition（構図）: 被写体の配置、視線誘導、バランス、余白の使い方
3. color（色彩）: 色のバランス、ホワイトバランス、彩度、トーン

各項目は50〜100文字で、良い点と改善点を具体的に述べてください。
必要であれば overall（総評）を50〜100文字で加えてください。

回答は次のJSON形式のみで返してください。前後に説明文を付けないでください。

{
  "technique": "技術面の講評",
  "composition": "構図の講評",
  "color": "色彩の講評",
  "overall": "総評"
}`

const (
	minFieldRunes = 50
	maxFieldRunes = 100
)
