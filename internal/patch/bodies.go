package patch

import (
	"regexp"

	"autopatch/internal/symbols"

	"go.uber.org/zap"
)

// loadModelsBody synthesizes the replacement loadModels declaration in the
// minified register of the surrounding file. Internal helpers that never cross
// the module boundary (logger handle, unified state store, UI constants,
// preference resolver) cannot ride the export chain, so they resolve through
// local-context chains against the file content.
func loadModelsBody(acp, getDefaultPid, aps, parseFn, content string, log *zap.Logger) string {
	loggerVar := symbols.Chain{
		Target: "store logger handle",
		Tiers: []symbols.Strategy{
			symbols.Capture("named logger factory", 0.85,
				regexp.MustCompile(`const\s+(\w+)\s*=\s*\w+\(\s*"ModelStore"\s*\)`)),
			symbols.Fixed("I"),
		},
	}.Resolve(content, log).Alias

	ussVar := symbols.Chain{
		Target: "unified state store",
		Tiers: []symbols.Strategy{
			symbols.Capture("setModelsLoading receiver", 0.85,
				regexp.MustCompile(`(\w+)\.setModelsLoading`)),
			symbols.Fixed("h"),
		},
	}.Resolve(content, log).Alias

	seVar := symbols.Chain{
		Target: "UI constants",
		Tiers: []symbols.Strategy{
			symbols.Capture("UI_MODEL_PREFERENCE owner", 0.85,
				regexp.MustCompile(`(\w+)\.UI_MODEL_PREFERENCE`)),
			symbols.Fixed("Se"),
		},
	}.Resolve(content, log).Alias

	ytVar := symbols.Chain{
		Target: "preference resolver",
		Tiers: []symbols.Strategy{
			symbols.Capture("preference resolver call", 0.85,
				regexp.MustCompile(`(\w+)\(\s*`+q(seVar)+`\.UI_MODEL_PREFERENCE`)),
			symbols.Fixed("yt"),
		},
	}.Resolve(content, log).Alias

	return `async loadModels(){if(this.modelsLoaded&&this.loadedForProviderId===` + symbols.AppliedMarker + `||this.isLoadingModels)` +
		`{` + loggerVar + `.debug("All provider models already loaded or loading, skipping");return}` +
		`this.isLoadingModels=!0,this.loadError=null,` +
		loggerVar + `.debug("Loading models for ALL providers"),` + ussVar + `.setModelsLoading(!0);` +
		`try{const e=Object.keys(` + acp + `),` +
		`t=` + getDefaultPid + `(),` +
		`s=await Promise.allSettled(e.map(async n=>{const o=await this.fetchModelsForProvider(n);` +
		`return{providerId:n,models:o}}));` +
		`let r=[];for(const n of s)if(n.status==="fulfilled"&&n.value.models.length>0)` +
		`{const{providerId:o,models:c}=n.value,` +
		"l=c.map(E=>o!==t?{...E,value:`${o}:${E.value}`}:E);r=r.concat(l)}" +
		`if(r.length>0){this.availableModels=r,this.modelsLoaded=!0,` +
		`this.loadedForProviderId=` + symbols.AppliedMarker + `,this.loadError=null,this.retryAttempt=0,` +
		loggerVar + `.info("Loaded models from all providers",{count:r.length}),` +
		ussVar + `.setAvailableModels(this.availableModels);` +
		`const n=r.map(o=>o.value),` +
		`{providerId:c,modelId:l}=` + parseFn + `(this.selectedModel);` +
		`if(!(n.includes(this.selectedModel)||n.some(o=>o===l||o.endsWith(":"+l)))&&this.availableModels.length>0)` +
		`{const o=` + ytVar + `(` + seVar + `.UI_MODEL_PREFERENCE,n)??this.availableModels[0].value;` +
		loggerVar + `.warn("Selected model not in merged list, using preferred default",` +
		`{selectedModel:this.selectedModel,fallbackModel:o}),this.selectModel(o)}}` +
		`else this.loadError="No models available from any provider.",` +
		loggerVar + `.warn("No models from any provider"),this.scheduleAutoRetry(` + aps + `.activeProviderId)}` +
		`catch(e){const t=e instanceof Error?e.message:"Failed to load models";` +
		`this.loadError=t,` + loggerVar + `.error("Failed to load models:",e),` +
		`this.scheduleAutoRetry(` + aps + `.activeProviderId)}finally{this.isLoadingModels=!1,` +
		ussVar + `.setModelsLoading(!1)}}`
}

func reloadBody() string {
	return `async reloadModelsForProvider(){` +
		`console.log("[ModelStore] Reloading models for all providers");` +
		`this.modelsLoaded=!1,this.loadedForProviderId=null,this.availableModels=[],` +
		`this.loadError=null;await this.loadModels()}`
}

func groupedModelsBody(parseFn, acp string) string {
	return `getGroupedModels(){if(this.availableModels.length===0)return[];` +
		`const e=new Map;for(const s of this.availableModels){` +
		`const r=` + parseFn + `(s.value).providerId;e.has(r)||e.set(r,[]);e.get(r).push(s)}` +
		`const t=[];for(const[s,r]of e){` +
		`const i=` + acp + `[s];t.push({providerId:i?i.id:s,providerDisplayName:i?i.displayName:s,models:r})}` +
		`return t}`
}
