package blip

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	ort "github.com/yalue/onnxruntime_go"

	"vision2lang/imaging"
)

// modelConfig mirrors the config.json exported next to the ONNX graphs.
// Missing fields fall back to the stock BLIP base values.
type modelConfig struct {
	ImageSize  int       `json:"image_size"`
	ImageMean  []float32 `json:"image_mean"`
	ImageStd   []float32 `json:"image_std"`
	BOSTokenID int64     `json:"bos_token_id"`
	EOSTokenID int64     `json:"eos_token_id"`
	PadTokenID int64     `json:"pad_token_id"`
}

func loadModelConfig(dir string) (modelConfig, error) {
	// BLIP base defaults: 384px input, CLIP normalization, [DEC] start
	// token, [SEP] end token.
	cfg := modelConfig{
		ImageSize:  384,
		ImageMean:  []float32{0.48145466, 0.4578275, 0.40821073},
		ImageStd:   []float32{0.26862954, 0.26130258, 0.27577711},
		BOSTokenID: 30522,
		EOSTokenID: 102,
		PadTokenID: 0,
	}

	data, err := os.ReadFile(filepath.Join(dir, "config.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config.json: %w", err)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config.json: %w", err)
	}
	if len(cfg.ImageMean) != 3 || len(cfg.ImageStd) != 3 {
		return cfg, fmt.Errorf("config.json: image_mean and image_std must have 3 entries")
	}

	return cfg, nil
}

// handle owns the ONNX sessions and tokenizer of one model. It is built
// once, shared by every request of its kind, and never reconfigured.
type handle struct {
	vision      *ort.DynamicAdvancedSession
	textEncoder *ort.DynamicAdvancedSession // VQA only
	decoder     *ort.DynamicAdvancedSession

	tk  *tokenizer
	cfg modelConfig
}

// encoding is the hidden-state output of the vision or text encoder,
// consumed by the decoder through cross attention.
type encoding struct {
	data  []float32
	shape []int64 // [batch, seq, hidden]
}

var decoderInputs = []string{"input_ids", "attention_mask", "encoder_hidden_states", "encoder_attention_mask"}

// loadHandle constructs a model handle from an export directory containing
// vision_model.onnx, text_decoder.onnx, vocab.txt and optionally
// config.json. VQA exports additionally carry text_encoder.onnx.
func loadHandle(dir string, withTextEncoder bool) (*handle, error) {
	cfg, err := loadModelConfig(dir)
	if err != nil {
		return nil, err
	}

	tk, err := loadTokenizer(filepath.Join(dir, "vocab.txt"))
	if err != nil {
		return nil, err
	}

	if err := initEnvironment(); err != nil {
		return nil, fmt.Errorf("initializing onnxruntime: %w", err)
	}

	opts, err := sessionOptions()
	if err != nil {
		return nil, fmt.Errorf("creating session options: %w", err)
	}
	defer opts.Destroy()

	h := &handle{tk: tk, cfg: cfg}

	h.vision, err = ort.NewDynamicAdvancedSession(
		filepath.Join(dir, "vision_model.onnx"),
		[]string{"pixel_values"}, []string{"last_hidden_state"}, opts)
	if err != nil {
		return nil, fmt.Errorf("loading vision encoder: %w", err)
	}

	if withTextEncoder {
		h.textEncoder, err = ort.NewDynamicAdvancedSession(
			filepath.Join(dir, "text_encoder.onnx"),
			decoderInputs, []string{"last_hidden_state"}, opts)
		if err != nil {
			h.Close()
			return nil, fmt.Errorf("loading text encoder: %w", err)
		}
	}

	h.decoder, err = ort.NewDynamicAdvancedSession(
		filepath.Join(dir, "text_decoder.onnx"),
		decoderInputs, []string{"logits"}, opts)
	if err != nil {
		h.Close()
		return nil, fmt.Errorf("loading text decoder: %w", err)
	}

	return h, nil
}

func (h *handle) Close() {
	if h.vision != nil {
		h.vision.Destroy()
		h.vision = nil
	}
	if h.textEncoder != nil {
		h.textEncoder.Destroy()
		h.textEncoder = nil
	}
	if h.decoder != nil {
		h.decoder.Destroy()
		h.decoder = nil
	}
}

// encodeImage runs the vision encoder over the canonical image.
func (h *handle) encodeImage(img *imaging.Image) (*encoding, error) {
	size := h.cfg.ImageSize
	pixels := img.Tensor(size, [3]float32(h.cfg.ImageMean), [3]float32(h.cfg.ImageStd))

	input, err := ort.NewTensor(ort.NewShape(1, 3, int64(size), int64(size)), pixels)
	if err != nil {
		return nil, fmt.Errorf("creating pixel tensor: %w", err)
	}
	defer input.Destroy()

	outputs := []ort.Value{nil}
	if err := h.vision.Run([]ort.Value{input}, outputs); err != nil {
		return nil, fmt.Errorf("running vision encoder: %w", err)
	}
	return encodingFromOutput(outputs[0])
}

// encodeQuestion runs the VQA text encoder over the tokenized question,
// cross attending the image encoding. The result conditions the answer
// decoder.
func (h *handle) encodeQuestion(question string, img *encoding) (*encoding, error) {
	if h.textEncoder == nil {
		return nil, fmt.Errorf("model has no text encoder")
	}

	inputs, err := h.sequenceInputs(h.tk.Encode(question), img)
	if err != nil {
		return nil, err
	}
	defer destroyAll(inputs)

	outputs := []ort.Value{nil}
	if err := h.textEncoder.Run(inputs, outputs); err != nil {
		return nil, fmt.Errorf("running text encoder: %w", err)
	}
	return encodingFromOutput(outputs[0])
}

// decodeStep runs one decoder pass over the tokens generated so far and
// returns the logits of the final position.
func (h *handle) decodeStep(ids []int64, enc *encoding) ([]float32, error) {
	inputs, err := h.sequenceInputs(ids, enc)
	if err != nil {
		return nil, err
	}
	defer destroyAll(inputs)

	outputs := []ort.Value{nil}
	if err := h.decoder.Run(inputs, outputs); err != nil {
		return nil, fmt.Errorf("running text decoder: %w", err)
	}
	logits, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		outputs[0].Destroy()
		return nil, fmt.Errorf("decoder logits are not float32")
	}
	defer logits.Destroy()

	shape := logits.GetShape()
	if len(shape) != 3 {
		return nil, fmt.Errorf("unexpected logits shape %v", shape)
	}
	vocab := int(shape[2])
	data := logits.GetData()

	// last position only
	last := make([]float32, vocab)
	copy(last, data[len(data)-vocab:])
	return last, nil
}

// sequenceInputs assembles the four tensors shared by the text encoder and
// decoder: token ids, an all-ones attention mask, and the cross-attention
// hidden states with their mask.
func (h *handle) sequenceInputs(ids []int64, enc *encoding) ([]ort.Value, error) {
	seq := int64(len(ids))

	idsTensor, err := ort.NewTensor(ort.NewShape(1, seq), ids)
	if err != nil {
		return nil, fmt.Errorf("creating input_ids tensor: %w", err)
	}

	mask := onesMask(len(ids))
	maskTensor, err := ort.NewTensor(ort.NewShape(1, seq), mask)
	if err != nil {
		idsTensor.Destroy()
		return nil, fmt.Errorf("creating attention_mask tensor: %w", err)
	}

	encTensor, err := ort.NewTensor(ort.NewShape(enc.shape...), enc.data)
	if err != nil {
		idsTensor.Destroy()
		maskTensor.Destroy()
		return nil, fmt.Errorf("creating encoder_hidden_states tensor: %w", err)
	}

	encMask := onesMask(int(enc.shape[1]))
	encMaskTensor, err := ort.NewTensor(ort.NewShape(1, enc.shape[1]), encMask)
	if err != nil {
		idsTensor.Destroy()
		maskTensor.Destroy()
		encTensor.Destroy()
		return nil, fmt.Errorf("creating encoder_attention_mask tensor: %w", err)
	}

	return []ort.Value{idsTensor, maskTensor, encTensor, encMaskTensor}, nil
}

func encodingFromOutput(v ort.Value) (*encoding, error) {
	t, ok := v.(*ort.Tensor[float32])
	if !ok {
		v.Destroy()
		return nil, fmt.Errorf("encoder output is not float32")
	}
	defer t.Destroy()

	shape := t.GetShape()
	if len(shape) != 3 {
		return nil, fmt.Errorf("unexpected encoder output shape %v", shape)
	}

	data := make([]float32, len(t.GetData()))
	copy(data, t.GetData())
	return &encoding{data: data, shape: []int64{shape[0], shape[1], shape[2]}}, nil
}

func onesMask(n int) []int64 {
	mask := make([]int64, n)
	for i := range mask {
		mask[i] = 1
	}
	return mask
}

func destroyAll(values []ort.Value) {
	for _, v := range values {
		v.Destroy()
	}
}
