package jsbind

// prelude builds the script facing classes on top of the native binding.
// NativeContext reports completions to a callback; Context turns them into
// promises keyed by play id.
const prelude = `(function (binding) {
	'use strict';

	function NativeContext(props, callback) {
		if (!new.target)
			throw new TypeError('NativeContext() must be called as a constructor');
		binding.init(this, props, callback);
	}
	NativeContext.prototype.play = function (id, props) { binding.play(this, id, props); };
	NativeContext.prototype.cancel = function (id) { binding.cancel(this, id); };
	NativeContext.prototype.cache = function (props) { binding.cache(this, props); };
	NativeContext.prototype.playing = function (id) { return binding.playing(this, id); };
	NativeContext.prototype.changeProps = function (props) { binding.changeProps(this, props); };
	NativeContext.prototype.destroy = function () { binding.destroy(this); };

	class Context {
		constructor(props = {}) {
			this._callbacks = new Map();
			this._native = new NativeContext(props, (id, err) => {
				const cb = this._callbacks.get(id);
				if (!cb)
					return;
				this._callbacks.delete(id);
				if (err)
					cb.reject(err);
				else
					cb.resolve();
			});
		}

		destroy() { this._native.destroy(); }
		cancel(id) { this._native.cancel(id); }
		cache(props) { this._native.cache(props); }
		playing(id) { return this._native.playing(id); }
		changeProps(props) { this._native.changeProps(props); }

		play(id, props) {
			const callbacks = {};
			const promise = new Promise((resolve, reject) => {
				callbacks.resolve = resolve;
				callbacks.reject = reject;
			});
			this._native.play(id, props);
			this._callbacks.set(id, callbacks);
			return promise;
		}
	}

	return { NativeContext, Context };
})`
