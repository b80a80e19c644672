package embedding

import (
	"fmt"
	"unsafe"

	gollama "github.com/dianlight/gollama.cpp"
	"github.com/hyperjump/kensaku/internal/config"
	"github.com/hyperjump/kensaku/pkg/utils"
)

// llamaRuntime loads GGUF embedding models through gollama.cpp.
type llamaRuntime struct{}

// NewLlamaRuntime returns the production model runtime.
func NewLlamaRuntime() ModelRuntime {
	return llamaRuntime{}
}

func (llamaRuntime) Load(cfg config.ModelConfig) (ModelSession, error) {
	if err := gollama.Backend_init(); err != nil {
		return nil, fmt.Errorf("init backend: %w", err)
	}
	_ = gollama.Log_disable()

	var model gollama.LlamaModel
	var llctx gollama.LlamaContext
	ok := false
	defer func() {
		if ok {
			return
		}
		if llctx != 0 {
			gollama.Free(llctx)
		}
		if model != 0 {
			gollama.Model_free(model)
		}
		gollama.Backend_free()
	}()

	modelParams := gollama.Model_default_params()
	var err error
	model, err = gollama.Model_load_from_file(cfg.Path, modelParams)
	if err != nil {
		return nil, fmt.Errorf("load model file: %w", err)
	}

	actualDim := int(gollama.Model_n_embd(model))
	if actualDim != cfg.Dimensions {
		return nil, fmt.Errorf("dimension mismatch: model has %d, configured %d", actualDim, cfg.Dimensions)
	}

	ctxParams := gollama.Context_default_params()
	ctxParams.Embeddings = 1
	ctxParams.NCtx = uint32(cfg.ContextSize)
	ctxParams.NBatch = uint32(cfg.BatchSize)
	ctxParams.NThreads = int32(cfg.Threads)

	llctx, err = gollama.Init_from_model(model, ctxParams)
	if err != nil {
		return nil, fmt.Errorf("init embedding context: %w", err)
	}
	gollama.Set_embeddings(llctx, true)
	ok = true

	return &llamaSession{
		model:       model,
		llctx:       llctx,
		dimension:   cfg.Dimensions,
		contextSize: cfg.ContextSize,
	}, nil
}

// llamaSession owns a loaded model and its embedding context.
type llamaSession struct {
	model       gollama.LlamaModel
	llctx       gollama.LlamaContext
	dimension   int
	contextSize int
}

func (s *llamaSession) Embed(text string) ([]float32, error) {
	tokens, err := gollama.Tokenize(s.model, text, true, false)
	if err != nil {
		return nil, fmt.Errorf("tokenize: %w", err)
	}

	// The empty sequence embeds to the zero of the model's space.
	if len(tokens) == 0 {
		return make([]float32, s.dimension), nil
	}
	if len(tokens) > s.contextSize {
		return nil, fmt.Errorf("input of %d tokens exceeds context size %d", len(tokens), s.contextSize)
	}

	gollama.Memory_clear(s.llctx, false)

	nTokens := int32(len(tokens))
	batch := gollama.Batch_init(nTokens, 0, 1)
	defer gollama.Batch_free(batch)

	tokenSlice := unsafe.Slice(batch.Token, nTokens)
	posSlice := unsafe.Slice(batch.Pos, nTokens)
	nSeqSlice := unsafe.Slice(batch.NSeqId, nTokens)
	seqIdSlice := unsafe.Slice(batch.SeqId, nTokens)
	logitsSlice := unsafe.Slice(batch.Logits, nTokens)

	for i := int32(0); i < nTokens; i++ {
		tokenSlice[i] = tokens[i]
		posSlice[i] = gollama.LlamaPos(i)
		nSeqSlice[i] = 1
		*seqIdSlice[i] = 0
		logitsSlice[i] = 1
	}
	batch.NTokens = nTokens

	if err := gollama.Decode(s.llctx, batch); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}

	// Pooled models (BERT/nomic-bert with mean pooling) expose the sequence
	// embedding via Get_embeddings_seq.
	embPtr := gollama.Get_embeddings_seq(s.llctx, 0)
	if embPtr == nil {
		return nil, fmt.Errorf("no embeddings returned (model may not support pooling)")
	}

	src := unsafe.Slice(embPtr, s.dimension)
	embedding := make([]float32, s.dimension)
	copy(embedding, src)
	utils.NormalizeL2(embedding)
	return embedding, nil
}

func (s *llamaSession) Dimension() int { return s.dimension }

func (s *llamaSession) Close() error {
	gollama.Free(s.llctx)
	gollama.Model_free(s.model)
	gollama.Backend_free()
	return nil
}
