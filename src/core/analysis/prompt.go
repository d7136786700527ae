package analysis

// DefaultPrompt 区域分析使用的固定提示词
const DefaultPrompt = "Analyze this astronomical image as if you were a deep learning model like YOLO or one trained on ImageNet. " +
	"Your task is to identify and list the primary celestial objects and distinct features. " +
	"For each object, provide a label (e.g., 'Spiral Galaxy', 'Star Cluster', 'Emission Nebula') and a brief, one-sentence description. " +
	"Present the output as a clear, itemized list."
